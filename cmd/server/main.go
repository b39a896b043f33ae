package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"closet-web/internal/api"
	"closet-web/internal/auth"
	"closet-web/internal/biz"
	"closet-web/internal/conf"
	"closet-web/internal/data"
	"closet-web/internal/netwatch"
	"closet-web/internal/server"
	"closet-web/internal/service"
	"closet-web/internal/telemetry"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var flagconf string

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

// cookieMirror 既是按设备划分的 CookieJar 工厂，也是 flush 时的数据源
type cookieMirror interface {
	api.CookieMirror
	Scope(deviceID string) biz.CookieJar
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// load config
	cfg, err := conf.Load(flagconf)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewSlog(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *conf.Config, logger *slog.Logger) error {
	// 可观测性
	metrics := telemetry.NewMetrics(cfg.App.Name)
	if cfg.Telemetry.Trace.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.App.Name, cfg.Telemetry.Trace.Endpoint, cfg.App.Environment)
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.Background())
		logger.Info("tracing enabled", "endpoint", cfg.Telemetry.Trace.Endpoint)
	}

	var sink telemetry.Sink = telemetry.NoOpSink{}
	if cfg.Telemetry.SinkPath != "" {
		fileSink, err := telemetry.OpenJSONFileSink(cfg.Telemetry.SinkPath)
		if err != nil {
			return err
		}
		defer fileSink.Close()
		dispatcher := telemetry.NewDispatcher(telemetry.DispatcherConfig{
			BufferSize: cfg.Telemetry.BufferSize,
			DropIfFull: true,
		}, fileSink)
		// dispatcher 先于 fileSink 关闭
		defer dispatcher.Close()
		metrics.WatchDispatcher(dispatcher)
		sink = dispatcher
	}
	log := telemetry.NewLogger(telemetry.Options{
		Base:        logger,
		Environment: cfg.App.Environment,
		Forward:     cfg.App.IsProduction() || cfg.Telemetry.Forward,
		Sink:        sink,
		Metrics:     metrics,
	})

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	// 手动依赖注入
	// data 层
	localCache, err := data.NewSQLiteLocalCache(cfg.Session.LocalCachePath)
	if err != nil {
		return err
	}
	defer localCache.Close()

	var mirror cookieMirror
	if cfg.Session.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		mirror = data.NewRedisCookieMirror(rdb, cfg.Session.Redis.KeyPrefix)
		logger.Info("cookie mirror on redis", "addr", cfg.Session.Redis.Addr)
	} else {
		mirror = data.NewMemoryCookieMirror()
		logger.Info("cookie mirror in memory")
	}

	toolkit := data.NewToolkit(data.ToolkitConfig{
		APIKey:         cfg.Identity.APIKey,
		BaseURL:        cfg.Identity.ToolkitURL,
		SecureTokenURL: cfg.Identity.SecureTokenURL,
		RequestURI:     cfg.Server.BaseURL,
		Timeout:        conf.ParseDuration(cfg.Identity.RequestTimeout, 10*time.Second),
	}, httpClient)

	// auth 层
	registry := auth.NewRegistry(toolkit)
	stateStore := auth.NewStateStore()

	var google api.GoogleOIDC
	if cfg.Auth.Enabled {
		redirectURL := cfg.Auth.GetRedirectURL(cfg.Server.BaseURL)
		oidcClient, err := auth.NewOIDCClient(oidc.ClientContext(ctx, httpClient), &cfg.Auth, redirectURL)
		if err != nil {
			return err
		}
		google = oidcClient
		logger.Info("Google sign-in enabled", "redirect_url", redirectURL)
	} else {
		logger.Info("Google sign-in disabled")
	}

	monitor := netwatch.New(netwatch.Config{
		ProbeURL: cfg.Network.ProbeURL,
		Interval: conf.ParseDuration(cfg.Network.ProbeInterval, 15*time.Second),
		Timeout:  conf.ParseDuration(cfg.Network.ProbeTimeout, 3*time.Second),
	}, httpClient, log)

	// biz 层
	manager := biz.NewSessionManager(biz.ManagerDeps{
		Providers: func(deviceID string) biz.IdentityProvider { return registry.Session(deviceID) },
		Caches:    localCache.Scope,
		Jars:      mirror.Scope,
		Forget:    registry.Forget,
	}, biz.ManagerConfig{
		Store: biz.StoreConfig{
			CookieTTL:       conf.ParseDuration(cfg.Session.CookieTTL, biz.DefaultCookieTTL),
			ClampToToken:    cfg.Session.ClampToToken(),
			ExpiryBuffer:    conf.ParseDuration(cfg.Session.ExpiryBuffer, biz.DefaultExpiryBuffer),
			RefreshInterval: conf.ParseDuration(cfg.Session.RefreshInterval, biz.DefaultRefreshInterval),
		},
		IdleTimeout:   conf.ParseDuration(cfg.Session.IdleTimeout, biz.DefaultIdleTimeout),
		SweepInterval: conf.ParseDuration(cfg.Session.SweepInterval, biz.DefaultSweepInterval),
	}, log)
	defer manager.Close()

	flow := biz.NewAuthFlow(manager, monitor, biz.FlowConfig{
		MaxRetries: cfg.Flow.MaxRetries,
		RetryDelay: conf.ParseDuration(cfg.Flow.RetryDelay, time.Second),
	}, log)
	reconciler := biz.NewReconciler(manager, monitor, biz.ReconcileConfig{
		LandingWait:   conf.ParseDuration(cfg.Network.LandingWait, biz.DefaultLandingWait),
		AuthStateWait: conf.ParseDuration(cfg.Session.AuthStateWaitTimeout, biz.DefaultAuthStateWait),
	}, log)

	// service 层
	authService := service.NewAuthService(flow, reconciler, google != nil, log)
	closetService := service.NewClosetService(reconciler)

	// api 层
	router := api.NewRouter(api.RouterDeps{
		AuthHandler:   api.NewAuthHandler(authService, google, stateStore, logger),
		ClosetHandler: api.NewClosetHandler(closetService),
		Network:       monitor,
		Metrics:       metrics.Handler(),
		MetricsMW:     metrics.Middleware,
		StaticDir:     cfg.Server.StaticDir,
	})
	handler := api.Chain(router,
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, cfg.App.Name) },
		api.DeviceMiddleware(api.DeviceOptions{
			MaxAge: conf.ParseDuration(cfg.Session.DeviceCookieMaxAge, api.DefaultDeviceCookieMaxAge),
			Secure: cfg.Session.CookieSecure,
			Touch:  manager.Touch,
		}),
		api.MirrorFlush(mirror, cfg.Session.CookieSecure, logger),
		auth.RouteGuard(logger),
	)

	srv := server.New(handler, server.Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     conf.ParseDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:    conf.ParseDuration(cfg.Server.WriteTimeout, 30*time.Second),
		ShutdownTimeout: conf.ParseDuration(cfg.Server.ShutdownTimeout, 10*time.Second),
	}, logger,
		monitor.Run,
		manager.Run,
		func(ctx context.Context) error { return stateStore.Run(ctx, 5*time.Minute) },
		func(ctx context.Context) error {
			retention := conf.ParseDuration(cfg.Session.ProviderRetention, auth.DefaultRetention)
			return registry.Run(ctx, time.Hour, retention, manager.Tracked)
		},
	)
	return srv.Run(ctx)
}
