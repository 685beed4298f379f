package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BuildAuthBaseURL is the auth base URL baked in at build time:
//
//	go build -ldflags "-X github.com/ziminpro/bird/internal/config.BuildAuthBaseURL=https://ums.example.com"
var BuildAuthBaseURL = ""

// DefaultAuthBaseURL is used outside development when nothing else is configured
const DefaultAuthBaseURL = "http://localhost:8080/api/ums"

// Config holds all configuration for the application
type Config struct {
	// Env is "development" or "production"
	Env string

	// Web front-end configuration
	Web WebConfig

	// Services configuration
	Services ServicesConfig

	// Logging Configuration
	Logging LoggingConfig
}

// WebConfig holds settings of the web front-end
type WebConfig struct {
	ListenAddr       string
	CookieSecure     bool
	CORSAllowOrigins []string
}

// ServicesConfig holds the addresses of the services the front-end talks to
type ServicesConfig struct {
	AuthBaseURL    string // empty means login and OAuth are unavailable
	UMSBaseURL     string
	TwitterBaseURL string
	HTTPTimeout    time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// runtimeFile is the deploy-time override file, the server-side counterpart of
// a window.__APP_CONFIG__ script
type runtimeFile struct {
	AuthBaseURL     string `yaml:"AUTH_BASE_URL"`
	ViteAuthBaseURL string `yaml:"VITE_AUTH_BASE_URL"`
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// AuthURL joins path onto the auth base URL. It returns "" when no base is configured.
func (c *Config) AuthURL(path string) string {
	return JoinURL(c.Services.AuthBaseURL, path)
}

// JoinURL joins base and path with exactly one slash between them.
// It returns "" when base is empty.
func JoinURL(base, path string) string {
	if base == "" {
		return ""
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	env := strings.ToLower(getEnv("APP_ENV", "production"))

	authBase, err := resolveAuthBaseURL(os.Getenv("BIRD_RUNTIME_CONFIG"), env == "development")
	if err != nil {
		return nil, err
	}

	// Downstream services default to the paths the auth service is usually mounted beside
	umsBase := getEnv("UMS_BASE_URL", authBase)
	twitterBase := getEnv("TWITTER_BASE_URL", "http://localhost:8080/api/twitter")

	timeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}

	cookieSecure := env != "development"
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		cookieSecure, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COOKIE_SECURE: %w", err)
		}
	}

	origins, err := parseOrigins(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"))
	if err != nil {
		return nil, fmt.Errorf("invalid CORS_ALLOW_ORIGINS: %w", err)
	}

	// Logging configuration - defaults suitable for production
	logFormat := "json"
	if env == "development" {
		logFormat = "console"
	}

	return &Config{
		Env: env,
		Web: WebConfig{
			ListenAddr:       getEnv("LISTEN_ADDR", ":3000"),
			CookieSecure:     cookieSecure,
			CORSAllowOrigins: origins,
		},
		Services: ServicesConfig{
			AuthBaseURL:    authBase,
			UMSBaseURL:     umsBase,
			TwitterBaseURL: twitterBase,
			HTTPTimeout:    timeout,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", logFormat),
		},
	}, nil
}

// parseOrigins splits a comma separated origin list. Every entry needs an
// http or https scheme; "*" is accepted only on its own.
func parseOrigins(raw string) ([]string, error) {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	switch {
	case len(origins) == 0:
		return nil, fmt.Errorf("no origins in %q", raw)
	case len(origins) == 1 && origins[0] == "*":
		return origins, nil
	}
	for _, origin := range origins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return nil, fmt.Errorf("origin %q needs an http:// or https:// scheme", origin)
		}
	}
	return origins, nil
}

// resolveAuthBaseURL applies the precedence runtime file, environment, build-time
// value, documented default. The first non-blank value wins.
func resolveAuthBaseURL(runtimePath string, development bool) (string, error) {
	if runtimePath != "" {
		rt, err := loadRuntimeFile(runtimePath)
		if err != nil {
			return "", err
		}
		if v := firstNonBlank(rt.AuthBaseURL, rt.ViteAuthBaseURL); v != "" {
			return v, nil
		}
	}

	if v := firstNonBlank(os.Getenv("AUTH_BASE_URL"), os.Getenv("VITE_AUTH_BASE_URL"), BuildAuthBaseURL); v != "" {
		return v, nil
	}

	if development {
		return "", nil
	}
	return DefaultAuthBaseURL, nil
}

func loadRuntimeFile(path string) (*runtimeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &runtimeFile{}, nil
		}
		return nil, fmt.Errorf("failed to read runtime config: %w", err)
	}

	var rt runtimeFile
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config %s: %w", path, err)
	}
	return &rt, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
