// Package config provides Viper-based configuration loading for the relay server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the listener bind settings for both channels.
type ServerConfig struct {
	// Host is the bind address for both the TCP and UDP listeners.
	Host string `mapstructure:"host"`
	// TCPPort is the port for the reliable control channel.
	TCPPort int `mapstructure:"tcp_port"`
	// UDPPort is the port for the unreliable data channel.
	UDPPort int `mapstructure:"udp_port"`
}

// TCPAddr returns the "host:port" control-channel listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) TCPAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.TCPPort)
}

// UDPAddr returns the "host:port" data-channel listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) UDPAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.UDPPort)
}

// RelayConfig holds relay engine tuning settings.
type RelayConfig struct {
	// HeartbeatTimeout is the inactivity duration after which a client is evicted.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	// ReapInterval is how often the liveness reaper scans for stale clients.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	// WriteTimeout is the per-write deadline for control-channel sends.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Host == "" {
		errs = append(errs, "server.host must not be empty")
	}
	if s.TCPPort < 1 || s.TCPPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.tcp_port must be 1-65535, got %d", s.TCPPort))
	}
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.udp_port must be 1-65535, got %d", s.UDPPort))
	}
	if s.TCPPort == s.UDPPort {
		errs = append(errs, "server.tcp_port and server.udp_port must differ")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	if r.HeartbeatTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("relay.heartbeat_timeout must be positive, got %s", r.HeartbeatTimeout))
	}
	if r.ReapInterval <= 0 {
		errs = append(errs, fmt.Sprintf("relay.reap_interval must be positive, got %s", r.ReapInterval))
	}
	if r.HeartbeatTimeout > 0 && r.ReapInterval > r.HeartbeatTimeout {
		errs = append(errs, "relay.reap_interval must not exceed relay.heartbeat_timeout")
	}
	if r.WriteTimeout < 0 {
		errs = append(errs, "relay.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with RELAY_ prefix
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.tcp_port", 7777)
	v.SetDefault("server.udp_port", 7778)

	v.SetDefault("relay.heartbeat_timeout", "60s")
	v.SetDefault("relay.reap_interval", "10s")
	v.SetDefault("relay.write_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
