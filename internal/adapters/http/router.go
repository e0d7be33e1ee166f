package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/adapters/signal"
	"github.com/calmbridge/televisit/internal/app"
	"github.com/calmbridge/televisit/internal/config"
	"github.com/calmbridge/televisit/internal/domain"
)

// SetupRouter wires the HTTP surface: the signaling WebSocket endpoint, a
// read-only room observability API, health and metrics.
func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	ctl *signal.Controller,
	registry *app.Registry,
	prom *prometheus.Registry,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(prom, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	// GET /api/rooms: currently-open rooms with counts and call states
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": registry.List()})
	})

	// GET /api/rooms/:id: roster snapshot for one room
	api.GET("/rooms/:id", func(c *gin.Context) {
		id := domain.RoomID(c.Param("id"))
		meta, roster, ok := registry.Snapshot(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"roomId":        meta.ID,
			"appointmentId": meta.AppointmentID,
			"callState":     meta.State.String(),
			"participants":  roster,
		})
	})

	r.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
