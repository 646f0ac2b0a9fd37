package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cna-finance/internal/logging"
)

type AdminVariant string

const (
	AdminVariantList   AdminVariant = "list"
	AdminVariantSearch AdminVariant = "search"
)

// ClientConfig drives the terminal client.
type ClientConfig struct {
	APIBase        string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
	SessionFile    string
	AdminVariant   AdminVariant
	PushEnabled    bool
	Log            logging.Config
}

// ServerConfig drives the development backend.
type ServerConfig struct {
	Port           int
	JWTSecret      string
	GinMode        string
	TLSCertFile    string
	TLSKeyFile     string
	TokenExpiry    time.Duration
	InitialBalance decimal.Decimal
	AdminUsername  string
	AdminPassword  string
	StateFile      string
	Log            logging.Config
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadClientConfig() (ClientConfig, error) {
	return LoadClientConfigFromEnv(osEnv{})
}

func LoadServerConfig() (ServerConfig, error) {
	return LoadServerConfigFromEnv(osEnv{})
}

func LoadClientConfigFromEnv(env Env) (ClientConfig, error) {
	cfg := ClientConfig{
		APIBase:        "http://127.0.0.1:5000/api",
		PollInterval:   10 * time.Second,
		RequestTimeout: 10 * time.Second,
		RetryBackoff:   300 * time.Millisecond,
		AdminVariant:   AdminVariantList,
		PushEnabled:    true,
		Log:            logConfig(env, "warn"),
	}

	if raw := strings.TrimSpace(env.Getenv("CNA_API_BASE")); raw != "" {
		if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			return ClientConfig{}, fmt.Errorf("invalid CNA_API_BASE")
		}
		cfg.APIBase = strings.TrimRight(raw, "/")
	}

	var err error
	if cfg.PollInterval, err = seconds(env, "CNA_POLL_INTERVAL_SECONDS", cfg.PollInterval); err != nil {
		return ClientConfig{}, err
	}
	if cfg.RequestTimeout, err = seconds(env, "CNA_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeout); err != nil {
		return ClientConfig{}, err
	}

	if raw := env.Getenv("CNA_RETRY_BACKOFF_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return ClientConfig{}, fmt.Errorf("invalid CNA_RETRY_BACKOFF_MS")
		}
		cfg.RetryBackoff = time.Duration(ms) * time.Millisecond
	}

	cfg.SessionFile = env.Getenv("CNA_SESSION_FILE")
	if cfg.SessionFile == "" {
		if home := env.Getenv("HOME"); home != "" {
			cfg.SessionFile = filepath.Join(home, ".cna-finance", "session.json")
		}
	}

	if raw := env.Getenv("CNA_ADMIN_VARIANT"); raw != "" {
		switch AdminVariant(raw) {
		case AdminVariantList, AdminVariantSearch:
			cfg.AdminVariant = AdminVariant(raw)
		default:
			return ClientConfig{}, fmt.Errorf("invalid CNA_ADMIN_VARIANT")
		}
	}

	if raw := env.Getenv("CNA_PUSH_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return ClientConfig{}, fmt.Errorf("invalid CNA_PUSH_ENABLED")
		}
		cfg.PushEnabled = enabled
	}

	return cfg, nil
}

func LoadServerConfigFromEnv(env Env) (ServerConfig, error) {
	cfg := ServerConfig{
		Port:           5000,
		GinMode:        "release",
		TokenExpiry:    time.Hour,
		InitialBalance: decimal.NewFromInt(100),
		Log:            logConfig(env, "info"),
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return ServerConfig{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.JWTSecret = env.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return ServerConfig{}, fmt.Errorf("JWT_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	var err error
	if cfg.TokenExpiry, err = seconds(env, "TOKEN_EXPIRY_SECONDS", cfg.TokenExpiry); err != nil {
		return ServerConfig{}, err
	}

	if raw := env.Getenv("INITIAL_BALANCE"); raw != "" {
		balance, err := decimal.NewFromString(raw)
		if err != nil || balance.IsNegative() {
			return ServerConfig{}, fmt.Errorf("invalid INITIAL_BALANCE")
		}
		cfg.InitialBalance = balance
	}

	cfg.AdminUsername = env.Getenv("ADMIN_USERNAME")
	cfg.AdminPassword = env.Getenv("ADMIN_PASSWORD")
	if (cfg.AdminUsername == "") != (cfg.AdminPassword == "") {
		return ServerConfig{}, fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}

	cfg.StateFile = env.Getenv("STATE_FILE")
	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c ServerConfig) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}

func seconds(env Env, key string, def time.Duration) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Second, nil
}

// logConfig reads LOG_LEVEL and LOG_DEV. The client shares the terminal with
// its logs, so it defaults quieter than the server.
func logConfig(env Env, defaultLevel string) logging.Config {
	dev := env.Getenv("LOG_DEV") == "1"
	lvl := env.Getenv("LOG_LEVEL")
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = defaultLevel
		}
	}
	return logging.Config{Level: lvl, Dev: dev}
}
