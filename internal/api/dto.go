package api

import (
	"context"
)

// EmailAuthRequest 邮箱登录/注册请求 DTO
type EmailAuthRequest struct {
	Mode     string `json:"mode"` // sign-in | register
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"` // 仅注册时需要
}

// ToggleModeRequest 切换登录/注册模式
type ToggleModeRequest struct {
	Mode string `json:"mode"`
}

// AuthScreen 登录页状态
type AuthScreen struct {
	Mode             string            `json:"mode"`
	ShowEmailForm    bool              `json:"showEmailForm"`
	Email            string            `json:"email,omitempty"`
	Name             string            `json:"name,omitempty"`
	State            string            `json:"state"`
	Error            string            `json:"error,omitempty"`
	ErrorCode        string            `json:"errorCode,omitempty"`
	FieldErrors      map[string]string `json:"fieldErrors,omitempty"`
	Notice           string            `json:"notice,omitempty"`
	Loading          bool              `json:"loading"`
	Offline          bool              `json:"offline"`
	PasswordStrength int               `json:"passwordStrength"`
	Redirect         string            `json:"redirect,omitempty"`
	GoogleEnabled    bool              `json:"googleEnabled"`
}

// ScreenQuery 登录页的查询参数
type ScreenQuery struct {
	Reason string
	Error  string
}

// RedirectResponse 跳转响应
type RedirectResponse struct {
	Redirect string `json:"redirect"`
}

// OwnerInfo 当前用户快照（对外展示）
type OwnerInfo struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	PhotoURL      string `json:"photoURL,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	LastLogin     int64  `json:"lastLogin"`
}

// NavLink 导航项
type NavLink struct {
	Label  string `json:"label"`
	Href   string `json:"href"`
	Active bool   `json:"active,omitempty"`
}

// Nav 顶栏与底栏
type Nav struct {
	Title  string    `json:"title"`
	Switch NavLink   `json:"switch"`
	Items  []NavLink `json:"items"`
}

// WardrobePage 衣柜页
type WardrobePage struct {
	Owner    OwnerInfo `json:"owner"`
	Greeting string    `json:"greeting"`
	Prompt   string    `json:"prompt"`
	Nav      Nav       `json:"nav"`
}

// SectionPage 其他分区页（占位）
type SectionPage struct {
	Section string `json:"section"`
	Nav     Nav    `json:"nav"`
}

// AuthService 登录流程服务接口
type AuthService interface {
	Screen(ctx context.Context, deviceID string, q ScreenQuery) *AuthScreen
	SubmitEmail(ctx context.Context, deviceID string, req *EmailAuthRequest) *AuthScreen
	ToggleMode(ctx context.Context, deviceID string, req *ToggleModeRequest) *AuthScreen
	SignInWithGoogle(ctx context.Context, deviceID string, idToken string) *AuthScreen
	// GoogleError 将 Google 回调中的 error 参数映射为错误码
	GoogleError(ctx context.Context, callbackError string) string
	Logout(ctx context.Context, deviceID string) *RedirectResponse
}

// ClosetService 页面服务接口
type ClosetService interface {
	// Landing 返回首页应跳转的地址
	Landing(ctx context.Context, deviceID string) string
	// Wardrobe 返回衣柜页，或者在需要重新登录时返回跳转地址
	Wardrobe(ctx context.Context, deviceID string) (*WardrobePage, string)
	// Section 返回分区页，未知分区返回 false
	Section(ctx context.Context, deviceID, name string) (*SectionPage, bool)
}
