package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/emberwake/relaygate/src/gateway"
	"github.com/emberwake/relaygate/src/rest"
)

// Server exposes a local status endpoint for operators: gateway session
// state plus the rate limit buckets observed so far.
type Server struct {
	router  *fiber.App
	gateway *gateway.Gateway
	rest    *rest.Client
	started time.Time
	log     zerolog.Logger
}

func NewServer(gw *gateway.Gateway, client *rest.Client, logger zerolog.Logger) *Server {
	return &Server{
		gateway: gw,
		rest:    client,
		started: time.Now(),
		log:     logger,
	}
}

type bucketStatus struct {
	ID        string    `json:"id"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Global    bool      `json:"global"`
}

type status struct {
	Session       gateway.SessionInfo `json:"session"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Buckets       []bucketStatus      `json:"rate_limit_buckets"`
}

func (server *Server) setupRouter() {
	router := fiber.New()
	router.Get("/status", func(c fiber.Ctx) error {
		buckets := server.rest.Buckets()
		out := status{
			Session:       server.gateway.Session(),
			UptimeSeconds: int64(time.Since(server.started).Seconds()),
			Buckets:       make([]bucketStatus, 0, len(buckets)),
		}
		for _, b := range buckets {
			out.Buckets = append(out.Buckets, bucketStatus{
				ID:        b.ID,
				Limit:     b.Limit,
				Remaining: b.Remaining,
				ResetAt:   b.ResetAt,
				Global:    b.Global,
			})
		}
		return c.JSON(out)
	})
	server.router = router
}

func (server *Server) StartServer(ctx context.Context, addr string) {
	server.log.Info().Str("address", addr).Msg("status server starting")
	server.setupRouter()
	err := server.router.Listen(addr, fiber.ListenConfig{
		GracefulContext: ctx,
		OnShutdownSuccess: func() {
			server.log.Info().Msg("status server stopped")
		},
	})
	if err != nil {
		server.log.Error().Err(err).Msg("status server failed")
	}
}
