package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("server timeouts cannot be negative")
	}

	if c.WebSocket.ReadLimit < 1 {
		return errors.New("websocket read limit must be positive")
	}
	if c.WebSocket.WriteTimeout < 1 {
		return errors.New("websocket write timeout must be at least 1 second")
	}
	if c.WebSocket.PingInterval < 1 {
		return errors.New("ping interval must be at least 1 second")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongTimeout {
		return errors.New("ping interval should be less than pong timeout")
	}
	if c.WebSocket.SendBuffer < 1 {
		return errors.New("send buffer must be positive")
	}

	if c.Registry.Shards < 1 {
		return errors.New("registry shards must be positive")
	}
	if c.Registry.AwaitingTTL < 0 {
		return errors.New("awaiting TTL cannot be negative")
	}
	if c.Registry.AwaitingTTL > 0 && c.Registry.SweepInterval < 1 {
		return errors.New("sweep interval must be at least 1 second when expiry is enabled")
	}

	if level, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil || level == zerolog.NoLevel {
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
	}
	return nil
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "CHESSRELAY_PORT")
	v.BindEnv("server.readTimeout", "CHESSRELAY_READ_TIMEOUT")
	v.BindEnv("server.writeTimeout", "CHESSRELAY_WRITE_TIMEOUT")
	v.BindEnv("server.allowedOrigins", "CHESSRELAY_ALLOWED_ORIGINS")

	// WebSocket
	v.BindEnv("websocket.readLimit", "CHESSRELAY_READ_LIMIT")
	v.BindEnv("websocket.writeTimeout", "CHESSRELAY_WS_WRITE_TIMEOUT")
	v.BindEnv("websocket.pingInterval", "CHESSRELAY_PING_INTERVAL")
	v.BindEnv("websocket.pongTimeout", "CHESSRELAY_PONG_TIMEOUT")
	v.BindEnv("websocket.sendBuffer", "CHESSRELAY_SEND_BUFFER")

	// Registry
	v.BindEnv("registry.shards", "CHESSRELAY_REGISTRY_SHARDS")
	v.BindEnv("registry.awaitingTTL", "CHESSRELAY_AWAITING_TTL")
	v.BindEnv("registry.sweepInterval", "CHESSRELAY_SWEEP_INTERVAL")

	// Relay
	v.BindEnv("relay.validateMoves", "CHESSRELAY_VALIDATE_MOVES")

	// Logging
	v.BindEnv("logging.file", "CHESSRELAY_LOG_FILE")
	v.BindEnv("logging.level", "CHESSRELAY_LOG_LEVEL")

	// Metrics
	v.BindEnv("metrics.enabled", "CHESSRELAY_METRICS_ENABLED")
	v.BindEnv("metrics.path", "CHESSRELAY_METRICS_PATH")
}
