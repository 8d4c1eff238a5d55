package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	ServerPort      string        `mapstructure:"port"`
	DatabaseType    string        `mapstructure:"database_type"`
	DatabaseURL     string        `mapstructure:"database_url"`
	DatabasePath    string        `mapstructure:"database_path"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	SessionDuration time.Duration `mapstructure:"session_duration"`
	CSRFSecret      string        `mapstructure:"csrf_secret"`
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`

	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`

	LogDir   string `mapstructure:"log_dir"`
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`

	AppBaseURL           string `mapstructure:"app_base_url"`
	OAuthRedirectBaseURL string `mapstructure:"oauth_redirect_base_url"`
	GoogleClientID       string `mapstructure:"google_client_id"`
	GoogleClientSecret   string `mapstructure:"google_client_secret"`
	AppleClientID        string `mapstructure:"apple_client_id"`
	AppleClientSecret    string `mapstructure:"apple_client_secret"`

	AWSRegion    string `mapstructure:"aws_region"`
	SESFromEmail string `mapstructure:"ses_from_email"`
	SESFromName  string `mapstructure:"ses_from_name"`

	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`
}

// Loader reads configuration from defaults, an optional config file and the environment,
// and keeps the decoded value current when the file changes.
type Loader struct {
	v   *viper.Viper
	mu  sync.RWMutex
	cfg *Config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_type", "sqlite")
	v.SetDefault("database_url", "")
	v.SetDefault("database_path", "./abapractice.db")
	v.SetDefault("migrations_path", "")
	v.SetDefault("session_duration", 24*time.Hour)
	v.SetDefault("csrf_secret", "change-me-in-production")
	v.SetDefault("remote_timeout", 10*time.Second)
	v.SetDefault("rate_limit_requests", 10)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("trust_proxy_headers", false)
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("app_base_url", "http://localhost:8080")
	v.SetDefault("oauth_redirect_base_url", "")
	v.SetDefault("google_client_id", "")
	v.SetDefault("google_client_secret", "")
	v.SetDefault("apple_client_id", "")
	v.SetDefault("apple_client_secret", "")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("ses_from_email", "")
	v.SetDefault("ses_from_name", "ABA Practice")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
}

// Load reads configuration. configDir may be empty, in which case only defaults and
// environment variables (prefixed ABA_) are used.
func Load(configDir string) (*Loader, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configDir != "" {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ABA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &Loader{v: v, cfg: cfg}, nil
}

// Config returns the current configuration snapshot
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch reloads the config file on change and hands the new value to onChange.
// It is a no-op when no config file was found.
func (l *Loader) Watch(onChange func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := l.v.Unmarshal(cfg); err != nil {
			onChange(nil, fmt.Errorf("reload %s: %w", e.Name, err))
			return
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		onChange(cfg, nil)
	})
	l.v.WatchConfig()
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	switch strings.ToLower(c.DatabaseType) {
	case "postgres", "postgresql", "mysql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for %s", c.DatabaseType)
		}
	}
	if c.SessionDuration <= 0 {
		return errors.New("session_duration must be positive")
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("remote_timeout must be positive")
	}
	return nil
}
