package service

import (
	"context"

	"closet-web/internal/api"
	"closet-web/internal/autherr"
	"closet-web/internal/biz"
	"closet-web/internal/telemetry"
)

// ReasonTimeout 会话超时后跳转到登录页时携带的 reason
const ReasonTimeout = "timeout"

const timeoutNotice = "Your session has expired. Please sign in again."

// authService 登录流程服务实现
type authService struct {
	flow          *biz.AuthFlow
	reconciler    *biz.Reconciler
	googleEnabled bool
	log           *telemetry.Logger
}

// NewAuthService 创建 AuthService
func NewAuthService(flow *biz.AuthFlow, reconciler *biz.Reconciler, googleEnabled bool, log *telemetry.Logger) api.AuthService {
	return &authService{
		flow:          flow,
		reconciler:    reconciler,
		googleEnabled: googleEnabled,
		log:           log,
	}
}

// Screen 返回登录页初始状态
func (s *authService) Screen(ctx context.Context, deviceID string, q api.ScreenQuery) *api.AuthScreen {
	screen := s.toScreen(s.flow.Screen(deviceID))
	if q.Reason == ReasonTimeout {
		screen.Notice = timeoutNotice
	}
	// 只接受已知的错误码，避免把任意文本回显到页面
	if msg, ok := autherr.MessageFor(q.Error); ok {
		screen.Error = msg
		screen.State = string(biz.StateFailed)
	}
	return screen
}

// SubmitEmail 邮箱登录或注册
func (s *authService) SubmitEmail(ctx context.Context, deviceID string, req *api.EmailAuthRequest) *api.AuthScreen {
	// api DTO -> biz form
	form := biz.NewForm()
	if biz.Mode(req.Mode) == biz.ModeRegister {
		form.Mode = biz.ModeRegister
	}
	form.ShowEmailForm = true
	form.Email = req.Email
	form.Password = req.Password
	form.Name = req.Name

	// 调用业务层
	return s.toScreen(s.flow.SubmitEmail(ctx, deviceID, form))
}

// ToggleMode 切换登录/注册模式，清空已输入的内容
func (s *authService) ToggleMode(ctx context.Context, deviceID string, req *api.ToggleModeRequest) *api.AuthScreen {
	current := s.flow.Screen(deviceID)
	if biz.Mode(req.Mode) == biz.ModeRegister {
		current.Mode = biz.ModeRegister
	}
	return s.toScreen(biz.ToggleMode(current))
}

// SignInWithGoogle 使用已验证的 Google ID token 登录
func (s *authService) SignInWithGoogle(ctx context.Context, deviceID string, idToken string) *api.AuthScreen {
	return s.toScreen(s.flow.SubmitGoogle(ctx, deviceID, biz.NewForm(), idToken))
}

// GoogleError 将 Google 回调的 error 参数映射为错误码
func (s *authService) GoogleError(ctx context.Context, callbackError string) string {
	code := autherr.CodeInternalError
	if callbackError == "access_denied" {
		code = autherr.CodePopupClosedByUser
	}
	autherr.Classify(ctx, s.log, autherr.New(code, callbackError), "method", "google_signin")
	return code
}

// Logout 退出登录
func (s *authService) Logout(ctx context.Context, deviceID string) *api.RedirectResponse {
	return &api.RedirectResponse{Redirect: s.reconciler.Logout(ctx, deviceID)}
}

// biz form -> api DTO
func (s *authService) toScreen(f biz.Form) *api.AuthScreen {
	return &api.AuthScreen{
		Mode:             string(f.Mode),
		ShowEmailForm:    f.ShowEmailForm,
		Email:            f.Email,
		Name:             f.Name,
		State:            string(f.State),
		Error:            f.Error,
		ErrorCode:        f.ErrorCode,
		FieldErrors:      f.FieldErrors,
		Loading:          f.Loading,
		Offline:          f.Offline,
		PasswordStrength: f.PasswordStrength,
		Redirect:         f.Redirect,
		GoogleEnabled:    s.googleEnabled,
	}
}
