// Package gateway implements the browser-facing relay server for the obrag
// backend. Its one non-trivial route is POST /api/chat, which transcodes the
// backend's answer event-stream into the client's message lifecycle protocol;
// every other route is a stateless JSON passthrough.
package gateway

import (
	"errors"
	"fmt"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/obragco/relay/gateway/header"
	"github.com/obragco/relay/gateway/telemetry"
	"github.com/obragco/relay/pkg/backend"
	"github.com/obragco/relay/pkg/metrics"
)

// ChatPath is the client-facing chat stream route.
const ChatPath = "/api/chat"

// relayPrefixes are the backend CRUD routes forwarded verbatim.
var relayPrefixes = []string{
	"/api/settings",
	"/api/projects",
	"/api/para",
	"/api/sync",
	"/api/sessions",
	"/api/embeddings",
}

// errorResponse is the JSON error body returned by gateway handlers.
type errorResponse struct {
	Error string `json:"error"`
}

// Gateway is the relay HTTP server. Each in-flight chat request owns its own
// transcoding loop; nothing is shared across requests beyond the backend
// client's connection pool.
type Gateway struct {
	config        Config
	logger        *zap.Logger
	server        *fiber.App
	backend       *backend.Client
	headerHandler *header.Handler
	metrics       *metrics.Metrics
	registry      *prometheus.Registry
	telemetry     *telemetry.Recorder
}

// New creates a new Gateway.
// Returns an error if the backend URL is missing.
func New(config Config, logger *zap.Logger) (*Gateway, error) {
	if config.BackendURL == "" {
		return nil, errors.New("backend URL is required")
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	rec, err := telemetry.NewRecorder(&telemetry.Config{
		NumWorkers: config.TelemetryWorkers,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create telemetry recorder: %w", err)
	}

	g := &Gateway{
		config:        config,
		logger:        logger,
		server:        app,
		backend:       backend.NewClient(config.BackendURL, config.streamTimeout()),
		headerHandler: header.NewHandler(),
		metrics:       m,
		registry:      registry,
		telemetry:     rec,
	}

	app.Get("/healthz", g.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	app.Post(ChatPath, g.handleChat)

	for _, prefix := range relayPrefixes {
		app.All(prefix, g.handleRelay)
		app.All(prefix+"/*", g.handleRelay)
	}

	return g, nil
}

// Run starts the gateway server on the configured listening address.
func (g *Gateway) Run() error {
	g.logger.Info("starting gateway server",
		zap.String("listen", g.config.ListenAddr),
		zap.String("backend", g.backend.BaseURL()),
	)

	return g.server.Listen(g.config.ListenAddr)
}

// RunWithListener starts the gateway server using the provided listener.
func (g *Gateway) RunWithListener(listener net.Listener) error {
	g.logger.Info("starting gateway server",
		zap.String("listen", listener.Addr().String()),
		zap.String("backend", g.backend.BaseURL()),
	)

	return g.server.Listener(listener)
}

// Close gracefully shuts down the gateway and drains the telemetry pool.
func (g *Gateway) Close() error {
	err := g.server.Shutdown()
	g.telemetry.Close()
	return err
}

func (g *Gateway) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
