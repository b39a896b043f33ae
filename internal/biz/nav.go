package biz

import "strings"

const (
	closetPrefix = "/my-closet/"
	laundryPath  = closetPrefix + "laundry"
)

var bottomBar = []string{"Wear", "Wardrobe", "Laundry", "Shop", "Settings"}

type NavItem struct {
	Label  string `json:"label"`
	Href   string `json:"href"`
	Active bool   `json:"active,omitempty"`
}

// Chrome is the navigation shown around every closet page.
type Chrome struct {
	Title  string    `json:"title"`
	Switch NavItem   `json:"switch"`
	Items  []NavItem `json:"items"`
}

// NavChrome builds the top switch and bottom bar for pathname.
func NavChrome(pathname string) Chrome {
	c := Chrome{Items: make([]NavItem, 0, len(bottomBar))}
	for _, label := range bottomBar {
		href := closetPrefix + strings.ToLower(label)
		c.Items = append(c.Items, NavItem{
			Label:  label,
			Href:   href,
			Active: under(pathname, href),
		})
	}

	if under(pathname, laundryPath) {
		c.Title = "LAUNDRY ROOM"
		c.Switch = NavItem{Label: "MY CLOSET", Href: closetPrefix + "wardrobe"}
	} else {
		c.Title = "MY CLOSET"
		c.Switch = NavItem{Label: "LAUNDRY ROOM", Href: laundryPath}
	}
	return c
}

// IsSection reports whether name is one of the bottom bar sections.
func IsSection(name string) bool {
	for _, label := range bottomBar {
		if strings.EqualFold(label, name) {
			return true
		}
	}
	return false
}

func under(pathname, path string) bool {
	return pathname == path || strings.HasPrefix(pathname, path+"/")
}
