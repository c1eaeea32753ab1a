package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// WebSocket limits.
	MaxMessageBytes int64   `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBuffer    int     `mapstructure:"client_buffer" yaml:"client_buffer"`
	WSRateLimit     float64 `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`
	WSRateBurst     int     `mapstructure:"ws_rate_burst" yaml:"ws_rate_burst"`

	// HTTP API.
	APIRateLimit   float64       `mapstructure:"api_rate_limit" yaml:"api_rate_limit"`
	APIRateBurst   int           `mapstructure:"api_rate_burst" yaml:"api_rate_burst"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	TokenCookieTTL time.Duration `mapstructure:"token_cookie_ttl" yaml:"token_cookie_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "studyroom.db",
		LogLevel:          "info",
		MaxMessageBytes:   1 << 16,
		ClientBuffer:      64,
		WSRateLimit:       5,
		WSRateBurst:       10,
		APIRateLimit:      10,
		APIRateBurst:      20,
		AllowedOrigins:    []string{"*"},
		TokenCookieTTL:    14 * 24 * time.Hour,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.ClientBuffer != 0 {
		c.ClientBuffer = other.ClientBuffer
	}
	if other.WSRateLimit != 0 {
		c.WSRateLimit = other.WSRateLimit
	}
	if other.WSRateBurst != 0 {
		c.WSRateBurst = other.WSRateBurst
	}
	if other.APIRateLimit != 0 {
		c.APIRateLimit = other.APIRateLimit
	}
	if other.APIRateBurst != 0 {
		c.APIRateBurst = other.APIRateBurst
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
	if other.TokenCookieTTL != 0 {
		c.TokenCookieTTL = other.TokenCookieTTL
	}
}
