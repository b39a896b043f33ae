package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	AuthHandler   *AuthHandler
	ClosetHandler *ClosetHandler
	Network       Connectivity
	Metrics       http.Handler
	MetricsMW     mux.MiddlewareFunc
	StaticDir     string
}

// NewRouter 创建路由并注册所有 handler
func NewRouter(deps RouterDeps) *mux.Router {
	r := mux.NewRouter()
	if deps.MetricsMW != nil {
		r.Use(deps.MetricsMW)
	}

	// Health check endpoint (public, no auth)
	r.HandleFunc("/health", HealthCheckHandler(deps.Network)).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	if deps.StaticDir != "" {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir))))
	}

	// 登录相关路由
	deps.AuthHandler.RegisterRoutes(r)
	// 页面路由，由 RouteGuard 在外层保护
	deps.ClosetHandler.RegisterRoutes(r)

	return r
}

// Chain 按顺序包装中间件，第一个在最外层
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
