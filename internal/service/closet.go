package service

import (
	"context"
	"strings"

	"closet-web/internal/api"
	"closet-web/internal/biz"
)

const wardrobePrompt = "What Will you Wear Today?"

// closetService 页面服务实现
type closetService struct {
	reconciler *biz.Reconciler
}

// NewClosetService 创建 ClosetService
func NewClosetService(reconciler *biz.Reconciler) api.ClosetService {
	return &closetService{reconciler: reconciler}
}

// Landing 首页：等待首个登录状态后决定跳转
func (s *closetService) Landing(ctx context.Context, deviceID string) string {
	return s.reconciler.Landing(ctx, deviceID)
}

// Wardrobe 衣柜页：校验本地快照与 provider 会话是否一致
func (s *closetService) Wardrobe(ctx context.Context, deviceID string) (*api.WardrobePage, string) {
	view := s.reconciler.Wardrobe(ctx, deviceID)
	if view.Owner == nil {
		return nil, view.Redirect
	}

	owner := toOwner(view.Owner)
	return &api.WardrobePage{
		Owner:    owner,
		Greeting: "Hi! " + owner.Name,
		Prompt:   wardrobePrompt,
		Nav:      toNav(biz.NavChrome("/my-closet/wardrobe")),
	}, ""
}

// Section 其他分区目前只渲染导航
func (s *closetService) Section(ctx context.Context, deviceID, name string) (*api.SectionPage, bool) {
	if !biz.IsSection(name) {
		return nil, false
	}
	section := strings.ToLower(name)
	return &api.SectionPage{
		Section: section,
		Nav:     toNav(biz.NavChrome("/my-closet/" + section)),
	}, true
}

// biz snapshot -> api DTO
func toOwner(s *biz.Snapshot) api.OwnerInfo {
	return api.OwnerInfo{
		UID:           s.UID,
		Email:         s.Email,
		Name:          s.Name,
		PhotoURL:      s.PhotoURL,
		EmailVerified: s.EmailVerified,
		LastLogin:     s.LastLogin,
	}
}

func toNav(c biz.Chrome) api.Nav {
	items := make([]api.NavLink, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, api.NavLink{Label: it.Label, Href: it.Href, Active: it.Active})
	}
	return api.Nav{
		Title:  c.Title,
		Switch: api.NavLink{Label: c.Switch.Label, Href: c.Switch.Href},
		Items:  items,
	}
}
