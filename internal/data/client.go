package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/autherr"

	"golang.org/x/oauth2"
)

// 服务端错误信息 -> 错误码
var toolkitErrorCodes = map[string]string{
	"EMAIL_EXISTS":                   autherr.CodeEmailAlreadyInUse,
	"EMAIL_NOT_FOUND":                autherr.CodeUserNotFound,
	"INVALID_PASSWORD":               autherr.CodeWrongPassword,
	"INVALID_LOGIN_CREDENTIALS":      autherr.CodeInvalidCredential,
	"INVALID_IDP_RESPONSE":           autherr.CodeInvalidCredential,
	"USER_DISABLED":                  autherr.CodeUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER":    autherr.CodeTooManyRequests,
	"WEAK_PASSWORD":                  autherr.CodeWeakPassword,
	"INVALID_EMAIL":                  autherr.CodeInvalidEmail,
	"MISSING_EMAIL":                  autherr.CodeInvalidEmail,
	"OPERATION_NOT_ALLOWED":          autherr.CodeOperationNotAllowed,
	"PASSWORD_LOGIN_DISABLED":        autherr.CodeOperationNotAllowed,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": autherr.CodeRequiresRecentLogin,
	"TOKEN_EXPIRED":                  autherr.CodeUserTokenExpired,
	"USER_NOT_FOUND":                 autherr.CodeUserTokenExpired,
	"INVALID_REFRESH_TOKEN":          autherr.CodeInvalidRefreshToken,
	"INVALID_GRANT_TYPE":             autherr.CodeInternalError,
	"MISSING_REFRESH_TOKEN":          autherr.CodeInternalError,
	"API_KEY_INVALID":                autherr.CodeInvalidAPIKey,
	"PROJECT_NOT_FOUND":              autherr.CodeAppDeleted,
}

// ToolkitConfig Identity Toolkit 客户端配置
type ToolkitConfig struct {
	APIKey         string
	BaseURL        string
	SecureTokenURL string
	// RequestURI is echoed back by federated sign-in; the app base URL.
	RequestURI string
	Timeout    time.Duration
}

// Toolkit Identity Toolkit REST 客户端，实现 auth.Backend
type Toolkit struct {
	cfg    ToolkitConfig
	client *http.Client
	oauth  oauth2.Config
}

// NewToolkit 创建客户端；httpClient 为空时使用默认客户端
func NewToolkit(cfg ToolkitConfig, httpClient *http.Client) *Toolkit {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokenURL := cfg.SecureTokenURL + "?key=" + url.QueryEscape(cfg.APIKey)
	return &Toolkit{
		cfg:    cfg,
		client: httpClient,
		oauth: oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

var _ auth.Backend = (*Toolkit)(nil)

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type idpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

// signInResponse 覆盖 signInWithPassword / signUp / signInWithIdp 的返回
type signInResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	EmailVerified bool   `json:"emailVerified"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		DisplayName   string `json:"displayName"`
		PhotoURL      string `json:"photoUrl"`
		EmailVerified bool   `json:"emailVerified"`
		LastLoginAt   string `json:"lastLoginAt"`
	} `json:"users"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *Toolkit) SignInWithPassword(ctx context.Context, email, password string) (*auth.Credential, error) {
	var resp signInResponse
	if err := t.post(ctx, "signInWithPassword", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	return t.credential(ctx, &resp), nil
}

func (t *Toolkit) SignUp(ctx context.Context, email, password string) (*auth.Credential, error) {
	var resp signInResponse
	if err := t.post(ctx, "signUp", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	return t.credential(ctx, &resp), nil
}

func (t *Toolkit) SignInWithIdp(ctx context.Context, providerID, idToken string) (*auth.Credential, error) {
	postBody := url.Values{"id_token": {idToken}, "providerId": {providerID}}.Encode()
	req := idpRequest{
		PostBody:            postBody,
		RequestURI:          t.cfg.RequestURI,
		ReturnIdpCredential: true,
		ReturnSecureToken:   true,
	}
	var resp signInResponse
	if err := t.post(ctx, "signInWithIdp", req, &resp); err != nil {
		return nil, err
	}
	return t.credential(ctx, &resp), nil
}

// RefreshIDToken 通过 securetoken 端点换取新的 ID token
func (t *Toolkit) RefreshIDToken(ctx context.Context, refreshToken string) (*auth.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)

	tok, err := t.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			if re.Response != nil && re.Response.StatusCode >= 500 {
				return nil, autherr.New(autherr.CodeInternalError, fmt.Sprintf("secure token service returned %d", re.Response.StatusCode))
			}
			return nil, decodeAPIError(re.Body)
		}
		return nil, transportError(ctx, err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		idToken = tok.AccessToken
	}
	uid, _ := tok.Extra("user_id").(string)
	return &auth.Credential{
		Profile:      auth.Profile{UID: uid},
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// credential 组装凭证；lookup 失败时保留登录返回的资料
func (t *Toolkit) credential(ctx context.Context, resp *signInResponse) *auth.Credential {
	now := time.Now()
	cred := &auth.Credential{
		Profile: auth.Profile{
			UID:           resp.LocalID,
			Email:         resp.Email,
			DisplayName:   resp.DisplayName,
			PhotoURL:      resp.PhotoURL,
			EmailVerified: resp.EmailVerified,
			LastLoginAt:   now,
		},
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    now.Add(parseExpiresIn(resp.ExpiresIn)),
	}

	var lookup lookupResponse
	if err := t.post(ctx, "lookup", map[string]string{"idToken": resp.IDToken}, &lookup); err != nil || len(lookup.Users) == 0 {
		return cred
	}
	u := lookup.Users[0]
	if u.DisplayName != "" {
		cred.DisplayName = u.DisplayName
	}
	if u.PhotoURL != "" {
		cred.PhotoURL = u.PhotoURL
	}
	cred.EmailVerified = u.EmailVerified
	if ms, err := strconv.ParseInt(u.LastLoginAt, 10, 64); err == nil {
		cred.LastLoginAt = time.UnixMilli(ms)
	}
	return cred
}

func (t *Toolkit) post(ctx context.Context, method string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}
	endpoint := t.cfg.BaseURL + "/accounts:" + method + "?key=" + url.QueryEscape(t.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transportError(ctx, err)
	}
	if resp.StatusCode >= 500 {
		return autherr.New(autherr.CodeInternalError, fmt.Sprintf("identity toolkit returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return autherr.Wrap(autherr.CodeInternalError, fmt.Errorf("failed to decode %s response: %w", method, err))
	}
	return nil
}

// decodeAPIError 解析 {"error":{"message":"EMAIL_NOT_FOUND"}}；消息可能带 " : 详情"
func decodeAPIError(body []byte) error {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return autherr.New(autherr.CodeInternalError, strings.TrimSpace(string(body)))
	}
	key := e.Error.Message
	if i := strings.IndexAny(key, " :"); i > 0 {
		key = key[:i]
	}
	code, ok := toolkitErrorCodes[key]
	if !ok {
		code = autherr.CodeInternalError
	}
	return autherr.New(code, e.Error.Message)
}

func transportError(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return autherr.Wrap(autherr.CodeTimeout, err)
	}
	return autherr.Wrap(autherr.CodeNetworkRequestFailed, err)
}

func parseExpiresIn(s string) time.Duration {
	secs, err := strconv.Atoi(s)
	if err != nil || secs <= 0 {
		return time.Hour
	}
	return time.Duration(secs) * time.Second
}
