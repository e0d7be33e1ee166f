package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/adapters/booking"
	"github.com/calmbridge/televisit/internal/adapters/gate"
	router "github.com/calmbridge/televisit/internal/adapters/http"
	signaladapter "github.com/calmbridge/televisit/internal/adapters/signal"
	"github.com/calmbridge/televisit/internal/adapters/sink"
	"github.com/calmbridge/televisit/internal/app"
	"github.com/calmbridge/televisit/internal/config"
	"github.com/calmbridge/televisit/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector())
	events := sink.NewPrometheus(prom)

	var (
		directory core.Directory
		users     core.IdentityStore
		status    core.StatusManager
	)
	switch cfg.Booking.Backend {
	case "http":
		client := booking.NewHTTPClient(cfg.Booking.BaseURL, cfg.Booking.Timeout)
		directory, users, status = client, client, client
	default:
		store, err := booking.OpenSQLite(cfg.Booking.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open booking store")
		}
		defer store.Close()
		directory, users, status = store, store, store
	}

	registry := app.NewRegistry(directory, events)
	coordinator := app.NewCoordinator(registry, status, events)
	relay := app.NewRelay(registry, events)
	gatekeeper := gate.New(gate.Options{
		Secret:          cfg.Secret,
		Issuer:          cfg.TokenIssuer,
		AllowedOrigins:  cfg.AllowedOrigins,
		RequireTLS:      cfg.RequireTLS,
		AdmissionLimit:  cfg.AdmissionLimit,
		AdmissionWindow: cfg.AdmissionWindow,
	}, users, events)

	controller := signaladapter.NewController(
		gatekeeper, registry, coordinator, relay, events,
		signaladapter.Options{ReadLimit: cfg.ReadLimit, SendBuffer: cfg.SendBuffer},
	)

	r := router.SetupRouter(ctx, cfg, controller, registry, prom)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("televisit signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
