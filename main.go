package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cameroncuttingedge/chess_relay/api"
	"github.com/cameroncuttingedge/chess_relay/config"
	"github.com/cameroncuttingedge/chess_relay/registry"
	"github.com/cameroncuttingedge/chess_relay/relay"
	"github.com/cameroncuttingedge/chess_relay/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	cfg, err := config.Load(env)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	InitializeLogger(cfg.Logging)
	log.Info().Str("env", env).Msg("Starting App")

	hub := websocket.NewHub(websocket.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadLimit:      cfg.WebSocket.ReadLimit,
		WriteTimeout:   cfg.WebSocket.WriteTimeoutDuration(),
		PingInterval:   cfg.WebSocket.PingIntervalDuration(),
		PongTimeout:    cfg.WebSocket.PongTimeoutDuration(),
		SendBuffer:     cfg.WebSocket.SendBuffer,
	})
	reg := registry.New(hub, registry.Config{Shards: cfg.Registry.Shards})
	rl := relay.New(reg, hub, nil, relay.Config{ValidateMoves: cfg.Relay.ValidateMoves})
	broker := api.NewBroker(reg, rl, hub)

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(broker, hub, api.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MetricsEnabled: cfg.Metrics.Enabled,
			MetricsPath:    cfg.Metrics.Path,
		}),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.CloseAll("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if ttl := cfg.Registry.AwaitingTTLDuration(); ttl > 0 {
		g.Go(func() error {
			sweepAwaiting(ctx, reg, ttl, cfg.Registry.SweepIntervalDuration())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// sweepAwaiting expires sessions nobody joined within ttl.
func sweepAwaiting(ctx context.Context, reg *registry.Registry, ttl, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := reg.ExpireAwaiting(now.Add(-ttl)); n > 0 {
				log.Info().Int("expired", n).Msg("Expired unjoined sessions")
			}
		}
	}
}

func InitializeLogger(cfg config.LoggingConfig) {
	if cfg.File == "" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		runLogFile, err := os.OpenFile(
			cfg.File,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			0664,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open log file")
		}
		multi := zerolog.MultiLevelWriter(runLogFile, os.Stdout)
		log.Logger = zerolog.New(multi).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
