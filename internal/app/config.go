package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config represents the runtime configuration for the hubsync backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Accounts   AccountsConfig   `mapstructure:"accounts"`
	Email      EmailConfig      `mapstructure:"email"`
	HubSpot    HubSpotConfig    `mapstructure:"hubspot"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	BaseURL  string `mapstructure:"base_url"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT   JWTSettings   `mapstructure:"jwt"`
	Reset ResetSettings `mapstructure:"reset"`
}

// JWTSettings configures the session token pair.
type JWTSettings struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// ResetSettings configures stateless password reset tokens. When Secret is
// empty the JWT secret is used as the signing key.
type ResetSettings struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"token_ttl"`
}

// AccountsConfig holds registration policy settings.
type AccountsConfig struct {
	AllowedEmailDomains []string `mapstructure:"allowed_email_domains"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// HubSpotConfig configures the remote CRM client.
type HubSpotConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("HUBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate reports every configuration problem at once rather than stopping
// at the first one.
func (c *Config) Validate() error {
	var err error

	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		err = multierr.Append(err, errors.New("auth.jwt.secret must be configured"))
	}
	if c.Auth.JWT.AccessTTL <= 0 {
		err = multierr.Append(err, errors.New("auth.jwt.access_token_ttl must be positive"))
	}
	if c.Auth.JWT.RefreshTTL <= c.Auth.JWT.AccessTTL {
		err = multierr.Append(err, errors.New("auth.jwt.refresh_token_ttl must exceed the access token ttl"))
	}
	if c.Auth.Reset.TTL <= 0 {
		err = multierr.Append(err, errors.New("auth.reset.token_ttl must be positive"))
	}
	if len(c.Accounts.AllowedEmailDomains) == 0 {
		err = multierr.Append(err, errors.New("accounts.allowed_email_domains must not be empty"))
	}
	if strings.TrimSpace(c.HubSpot.BaseURL) == "" {
		err = multierr.Append(err, errors.New("hubspot.base_url must be configured"))
	}

	return err
}

// ResetSecret returns the reset token signing key, falling back to the JWT secret.
func (c *Config) ResetSecret() string {
	if secret := strings.TrimSpace(c.Auth.Reset.Secret); secret != "" {
		return secret
	}
	return strings.TrimSpace(c.Auth.JWT.Secret)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.base_url", "http://localhost:8000")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/hubsync.sqlite")

	v.SetDefault("auth.jwt.issuer", "hubsync")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.reset.token_ttl", "1h")

	v.SetDefault("accounts.allowed_email_domains", []string{"gmail.com", "yahoo.com"})

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("hubspot.base_url", "https://api.hubapi.com/contacts/v1")
	v.SetDefault("hubspot.timeout", "15s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
