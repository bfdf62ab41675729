package gateway

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// handleRelay forwards a CRUD request (settings, projects, PARA notes, sync)
// to the backend verbatim and returns the backend's response untouched:
// same method, same body, filtered headers, passthrough status. No payload
// transformation happens at this layer.
func (g *Gateway) handleRelay(c *fiber.Ctx) error {
	method := c.Method()
	path := c.Path()
	if qs := c.Context().QueryArgs().String(); qs != "" {
		path += "?" + qs
	}

	g.metrics.RelayRequests.WithLabelValues(method).Inc()

	g.logger.Debug("relaying request to backend",
		zap.String("method", method),
		zap.String("path", path),
	)

	resp, err := g.backend.Relay(c.Context(), method, path, c.Body(), g.headerHandler.UpstreamRequestHeaders(c))
	if err != nil {
		g.logger.Error("backend relay failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "backend request failed"})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.Error("failed to read backend response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "failed to read backend response"})
	}

	g.headerHandler.SetClientResponseHeaders(c, resp)

	return c.Status(resp.StatusCode).Send(respBody)
}
