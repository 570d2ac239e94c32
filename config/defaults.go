package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15)
	v.SetDefault("server.writeTimeout", 15)
	v.SetDefault("server.allowedOrigins", []string{})

	// WebSocket
	v.SetDefault("websocket.readLimit", 4096)
	v.SetDefault("websocket.writeTimeout", 10)
	v.SetDefault("websocket.pingInterval", 25)
	v.SetDefault("websocket.pongTimeout", 30)
	v.SetDefault("websocket.sendBuffer", 32)

	// Registry
	v.SetDefault("registry.shards", 32)
	v.SetDefault("registry.awaitingTTL", 0)
	v.SetDefault("registry.sweepInterval", 60)

	// Relay
	v.SetDefault("relay.validateMoves", false)

	// Logging
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.level", "info")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
