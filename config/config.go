package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Registry  RegistryConfig
	Relay     RelayConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    int // Seconds
	WriteTimeout   int // Seconds
	AllowedOrigins []string
}

type WebSocketConfig struct {
	ReadLimit    int64 // Bytes
	WriteTimeout int   // Seconds
	PingInterval int   // Seconds
	PongTimeout  int   // Seconds
	SendBuffer   int
}

type RegistryConfig struct {
	Shards        int
	AwaitingTTL   int // Seconds, 0 disables expiry
	SweepInterval int // Seconds
}

type RelayConfig struct {
	ValidateMoves bool
}

type LoggingConfig struct {
	File  string
	Level string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads config.<env>.yaml from ./configs or the working directory when
// present, then applies CHESSRELAY_ environment overrides and defaults.
func Load(env string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("CHESSRELAY")

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c ServerConfig) ReadTimeoutDuration() time.Duration  { return seconds(c.ReadTimeout) }
func (c ServerConfig) WriteTimeoutDuration() time.Duration { return seconds(c.WriteTimeout) }

func (c WebSocketConfig) WriteTimeoutDuration() time.Duration { return seconds(c.WriteTimeout) }
func (c WebSocketConfig) PingIntervalDuration() time.Duration { return seconds(c.PingInterval) }
func (c WebSocketConfig) PongTimeoutDuration() time.Duration  { return seconds(c.PongTimeout) }

func (c RegistryConfig) AwaitingTTLDuration() time.Duration   { return seconds(c.AwaitingTTL) }
func (c RegistryConfig) SweepIntervalDuration() time.Duration { return seconds(c.SweepInterval) }
