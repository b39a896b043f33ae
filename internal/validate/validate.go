// Package validate holds the pure input checks used by the sign-in screens.
package validate

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	emailRe        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	upperRe        = regexp.MustCompile(`[A-Z]`)
	lowerRe        = regexp.MustCompile(`[a-z]`)
	digitRe        = regexp.MustCompile(`[0-9]`)
	specialRe      = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]`)
	nameRe         = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	angleRe        = regexp.MustCompile(`[<>]`)
	jsSchemeRe     = regexp.MustCompile(`(?i)javascript:`)
	inlineHandleRe = regexp.MustCompile(`(?i)on\w+=`)
)

const (
	maxEmailLength = 254
	minNameLength  = 2
	maxNameLength  = 50
)

// weakPasswords are rejected regardless of composition. Compared lowercased.
var weakPasswords = []string{"password", "12345678", "qwerty123", "abc12345"}

// Result is the outcome of a simple field check.
type Result struct {
	Valid bool   `json:"isValid"`
	Error string `json:"error,omitempty"`
}

// Email checks presence, format and length, in that order.
func Email(email string) Result {
	if email == "" {
		return Result{Error: "Email is required"}
	}
	if !emailRe.MatchString(email) {
		return Result{Error: "Please enter a valid email address"}
	}
	if len(email) > maxEmailLength {
		return Result{Error: "Email is too long"}
	}
	return Result{Valid: true}
}

// PasswordOptions selects which composition rules apply.
type PasswordOptions struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// DefaultPasswordOptions is the registration policy.
func DefaultPasswordOptions() PasswordOptions {
	return PasswordOptions{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
	}
}

// PasswordResult carries every violated rule and a 0-100 strength score.
type PasswordResult struct {
	Valid    bool   `json:"isValid"`
	Error    string `json:"error,omitempty"`
	Strength int    `json:"strength"`
}

// Password accumulates all rule violations and scores the password.
func Password(password string, opts PasswordOptions) PasswordResult {
	if password == "" {
		return PasswordResult{Error: "Password is required"}
	}

	var errs []string
	strength := 0
	length := utf8.RuneCountInString(password)

	if length < opts.MinLength {
		errs = append(errs, "Password must be at least "+strconv.Itoa(opts.MinLength)+" characters")
	} else {
		strength += 20
	}
	if length >= 12 {
		strength += 10
	}

	hasUpper := upperRe.MatchString(password)
	if opts.RequireUppercase && !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	} else if hasUpper {
		strength += 20
	}

	hasLower := lowerRe.MatchString(password)
	if opts.RequireLowercase && !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	} else if hasLower {
		strength += 20
	}

	hasDigit := digitRe.MatchString(password)
	if opts.RequireNumber && !hasDigit {
		errs = append(errs, "Password must contain at least one number")
	} else if hasDigit {
		strength += 20
	}

	hasSpecial := specialRe.MatchString(password)
	if opts.RequireSpecial && !hasSpecial {
		errs = append(errs, "Password must contain at least one special character")
	} else if hasSpecial {
		strength += 10
	}

	lowered := strings.ToLower(password)
	for _, weak := range weakPasswords {
		if lowered == weak {
			errs = append(errs, "This password is too common")
			strength = 10
			break
		}
	}

	if strength > 100 {
		strength = 100
	}

	return PasswordResult{
		Valid:    len(errs) == 0,
		Error:    strings.Join(errs, ". "),
		Strength: strength,
	}
}

// NameResult carries the sanitized name on success.
type NameResult struct {
	Valid     bool   `json:"isValid"`
	Error     string `json:"error,omitempty"`
	Sanitized string `json:"sanitizedName,omitempty"`
}

// Name sanitizes, then checks length and the allowed character set.
func Name(name string) NameResult {
	if name == "" {
		return NameResult{Error: "Name is required"}
	}

	sanitized := Sanitize(name)
	n := utf8.RuneCountInString(sanitized)
	if n < minNameLength {
		return NameResult{Error: "Name must be at least 2 characters"}
	}
	if n > maxNameLength {
		return NameResult{Error: "Name is too long (max 50 characters)"}
	}
	if !nameRe.MatchString(sanitized) {
		return NameResult{Error: "Name contains invalid characters"}
	}
	return NameResult{Valid: true, Sanitized: sanitized}
}

// Sanitize strips markup-injection fragments and surrounding whitespace.
func Sanitize(input string) string {
	if input == "" {
		return ""
	}
	out := angleRe.ReplaceAllString(input, "")
	out = jsSchemeRe.ReplaceAllString(out, "")
	out = inlineHandleRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// URLResult reports whether the URL is well formed and uses HTTPS.
type URLResult struct {
	Valid   bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
	Secure  bool   `json:"isSecure"`
	Warning string `json:"warning,omitempty"`
}

// URL accepts any absolute URL and warns when it is not HTTPS.
func URL(raw string) URLResult {
	if raw == "" {
		return URLResult{Error: "URL is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || (u.Opaque == "" && u.Host == "" && u.Path == "") {
		return URLResult{Error: "Invalid URL format"}
	}
	if u.Scheme != "https" {
		return URLResult{Valid: true, Warning: "URL should use HTTPS for security"}
	}
	return URLResult{Valid: true, Secure: true}
}
