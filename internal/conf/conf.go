package conf

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the config structure.
type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
	Identity  Identity  `yaml:"identity"`
	Auth      Auth      `yaml:"auth"`
	Session   Session   `yaml:"session"`
	Network   Network   `yaml:"network"`
	Flow      Flow      `yaml:"flow"`
}

// App is the application-wide config.
type App struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment" validate:"oneof=development production test"`
}

// IsProduction reports whether the app runs in production.
func (a App) IsProduction() bool {
	return a.Environment == "production"
}

// Server is the server config.
type Server struct {
	BaseURL         string `yaml:"base_url" validate:"required,url"`
	Addr            string `yaml:"addr" validate:"required"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	StaticDir       string `yaml:"static_dir"`
}

// Log is the logging config.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Telemetry configures the event sink, metrics and tracing.
type Telemetry struct {
	// Forward sends warn/error/auth events to the sink outside production too.
	Forward    bool   `yaml:"forward"`
	SinkPath   string `yaml:"sink_path"`
	BufferSize int    `yaml:"buffer_size" validate:"gte=0"`
	Trace      Trace  `yaml:"trace"`
}

// Trace is the OpenTelemetry tracing config.
type Trace struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Identity is the identity toolkit config.
type Identity struct {
	APIKey         string `yaml:"api_key" validate:"required"`
	ToolkitURL     string `yaml:"toolkit_url" validate:"required,url"`
	SecureTokenURL string `yaml:"secure_token_url" validate:"required,url"`
	RequestTimeout string `yaml:"request_timeout"`
}

// Auth is the federated (Google) sign-in config.
type Auth struct {
	Enabled      bool     `yaml:"enabled"`
	Provider     string   `yaml:"provider" validate:"required_if=Enabled true"`
	ClientID     string   `yaml:"client_id" validate:"required_if=Enabled true"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"` // Optional: if not set, auto-constructed from server.base_url
	Scopes       []string `yaml:"scopes"`
}

// GetRedirectURL returns the OIDC callback URL
// If RedirectURL is explicitly configured, use it
// Otherwise, construct from server base_url + hardcoded callback path
func (a *Auth) GetRedirectURL(serverBaseURL string) string {
	if a.RedirectURL != "" {
		return a.RedirectURL
	}
	return serverBaseURL + "/api/auth/google/callback"
}

// Session configures the three persistence surfaces and their timers.
type Session struct {
	LocalCachePath       string `yaml:"local_cache_path" validate:"required"`
	Redis                Redis  `yaml:"redis"`
	CookieTTL            string `yaml:"cookie_ttl"`
	CookieSecure         bool   `yaml:"cookie_secure"`
	ClampCookieToToken   *bool  `yaml:"clamp_cookie_to_token"`
	RefreshInterval      string `yaml:"refresh_interval"`
	ExpiryBuffer         string `yaml:"expiry_buffer"`
	IdleTimeout          string `yaml:"idle_timeout"`
	SweepInterval        string `yaml:"sweep_interval"`
	DeviceCookieMaxAge   string `yaml:"device_cookie_max_age"`
	AuthStateWaitTimeout string `yaml:"auth_state_wait_timeout"`
	// ProviderRetention 未使用的 provider 会话保留时长
	ProviderRetention    string `yaml:"provider_retention"`
}

// ClampToToken reports whether cookie TTLs are capped at the token expiry.
func (s Session) ClampToToken() bool {
	return s.ClampCookieToToken == nil || *s.ClampCookieToToken
}

// Redis is the cookie mirror backend config. An empty Addr selects the in-process jar.
type Redis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Network configures the connectivity monitor.
type Network struct {
	ProbeURL      string `yaml:"probe_url" validate:"omitempty,url"`
	ProbeInterval string `yaml:"probe_interval"`
	ProbeTimeout  string `yaml:"probe_timeout"`
	LandingWait   string `yaml:"landing_wait"`
}

// Flow configures the sign-in flow.
type Flow struct {
	MaxRetries int    `yaml:"max_retries" validate:"gte=1"`
	RetryDelay string `yaml:"retry_delay"`
}

// Load loads config from file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and env overrides, then validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "closet-web"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Telemetry.BufferSize == 0 {
		c.Telemetry.BufferSize = 256
	}
	if c.Identity.ToolkitURL == "" {
		c.Identity.ToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	}
	if c.Identity.SecureTokenURL == "" {
		c.Identity.SecureTokenURL = "https://securetoken.googleapis.com/v1/token"
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = "https://accounts.google.com"
	}
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = []string{"openid", "email", "profile"}
	}
	if c.Session.LocalCachePath == "" {
		c.Session.LocalCachePath = "data/local_cache.db"
	}
	if c.Session.Redis.KeyPrefix == "" {
		c.Session.Redis.KeyPrefix = "closet:cookie:"
	}
	if c.Network.ProbeURL == "" {
		c.Network.ProbeURL = c.Identity.ToolkitURL
	}
	if c.Flow.MaxRetries == 0 {
		c.Flow.MaxRetries = 2
	}
}

func (c *Config) applyEnv() {
	// Override server config from env vars if present
	if baseURL := os.Getenv("SERVER_BASE_URL"); baseURL != "" {
		c.Server.BaseURL = baseURL
	}
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		c.App.Environment = env
	}

	if key := os.Getenv("IDENTITY_API_KEY"); key != "" {
		c.Identity.APIKey = key
	}

	// Override auth config from env vars if present
	if secret := os.Getenv("OIDC_CLIENT_SECRET"); secret != "" {
		c.Auth.ClientSecret = secret
	}
	if provider := os.Getenv("OIDC_PROVIDER"); provider != "" {
		c.Auth.Provider = provider
	}
	if redirectURL := os.Getenv("OIDC_REDIRECT_URL"); redirectURL != "" {
		c.Auth.RedirectURL = redirectURL
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Session.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Session.Redis.Password = password
	}
	if secure := os.Getenv("COOKIE_SECURE"); secure != "" {
		if v, err := strconv.ParseBool(secure); err == nil {
			c.Session.CookieSecure = v
		}
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Telemetry.Trace.Endpoint = endpoint
	}
}

// ParseDuration parses s, returning fallback when s is empty or malformed.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
