package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/obragco/relay/gateway/telemetry"
	"github.com/obragco/relay/pkg/backend"
	"github.com/obragco/relay/pkg/chat"
	"github.com/obragco/relay/pkg/metrics"
	"github.com/obragco/relay/pkg/sse"
	"github.com/obragco/relay/pkg/uistream"
	"github.com/obragco/relay/pkg/utils"
)

// handleChat validates the inbound chat request, opens the backend answer
// stream, and transcodes it onto the response. The request fails fast with
// the backend's status if the backend rejects it before streaming starts;
// once streaming has begun there is no retry path, since replaying a
// partially streamed answer would duplicate visible content.
func (g *Gateway) handleChat(c *fiber.Ctx) error {
	req, err := chat.ParseRequest(c.Body())
	if err != nil {
		g.logger.Debug("rejecting chat request", zap.Error(err))
		g.telemetry.Record(telemetry.StreamStats{Outcome: metrics.OutcomeInvalid})
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	ask := backend.AskRequest{
		Question:  req.Question(),
		SessionID: req.SessionID,
	}
	if s := req.Settings; s != nil {
		ask.APIKey = s.APIKey
		ask.LLMProvider = s.LLMProvider
		ask.LLMModel = s.LLMModel
	}

	g.logger.Debug("opening answer stream",
		zap.String("question", utils.Truncate(ask.Question, 80)),
		zap.String("session_id", ask.SessionID),
	)

	// The context, not fiber's request context, bounds the upstream exchange:
	// fasthttp recycles its RequestCtx after the handler returns, but the
	// transcoding loop runs asynchronously and needs the backend connection
	// to remain open. Cancellation flows through cancel() instead.
	ctx, cancel := context.WithTimeout(context.Background(), g.config.streamTimeout())

	resp, err := g.backend.Ask(ctx, ask)
	if err != nil {
		cancel()
		g.logger.Error("backend request failed", zap.Error(err))
		g.telemetry.Record(telemetry.StreamStats{Outcome: metrics.OutcomeFailed})
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "backend request failed"})
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		g.logger.Error("backend rejected chat request",
			zap.Int("status", resp.StatusCode),
			zap.String("body", utils.Truncate(string(respBody), 200)),
		)
		g.telemetry.Record(telemetry.StreamStats{Outcome: metrics.OutcomeRejected})
		return c.Status(resp.StatusCode).Send(respBody)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	// Use io.Pipe + SetBodyStream so pw.Write blocks until fasthttp's chunked
	// writer has flushed to the TCP socket. This gives direct backpressure,
	// true per-event streaming, and an error on pw.Write as soon as the
	// client disconnects.
	pr, pw := io.Pipe()
	go g.transcode(ctx, cancel, resp, pw)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// transcode drives one answer stream: read frames, decode, normalize onto
// the client protocol, and seal the message on every exit path.
func (g *Gateway) transcode(ctx context.Context, cancel context.CancelFunc, resp *http.Response, pw *io.PipeWriter) {
	start := time.Now()

	// Close the upstream response body once streaming is complete, and
	// release the context so an abandoned stream stops consuming the backend.
	defer resp.Body.Close()
	defer pw.Close()
	defer cancel()

	in := sse.NewReader(resp.Body)
	out := uistream.NewWriter(pw)

	stats := g.pump(in, out)

	// The message (if opened) is closed exactly once, even on failure or
	// cancellation. A close failure means the client is already gone.
	if err := out.Close(); err != nil {
		g.logger.Debug("could not finalize client stream", zap.Error(err))
	}

	if err := ctx.Err(); err != nil && stats.Outcome == metrics.OutcomeCompleted {
		stats.Outcome = metrics.OutcomeFailed
	}

	stats.Duration = time.Since(start)
	g.telemetry.Record(stats)
}

// pump is the single-threaded read/decode/normalize/write loop for one
// request. It returns when the upstream is exhausted, the upstream read
// fails, or a downstream write fails (client disconnected).
func (g *Gateway) pump(in *sse.Reader, out *uistream.Writer) telemetry.StreamStats {
	stats := telemetry.StreamStats{Outcome: metrics.OutcomeCompleted}

	for {
		ev, err := in.Next()
		if err != nil {
			// Mid-stream transport failure or cancellation. The stream
			// degrades to "ended early"; the close below is the only signal
			// the client needs.
			g.logger.Error("error reading answer stream", zap.Error(err))
			stats.Outcome = metrics.OutcomeFailed
			return stats
		}
		if ev == nil {
			return stats
		}

		record, ok := backend.DecodeStreamEvent(ev.Data)
		if !ok {
			// A malformed frame is dropped, never fatal.
			stats.FramesDropped++
			g.logger.Warn("skipping malformed stream frame",
				zap.String("data", utils.Truncate(ev.Data, 120)),
			)
			continue
		}
		stats.FramesDecoded++

		switch record.Type {
		case backend.EventContent:
			if err := out.Append(record.Content); err != nil {
				// The client stopped accepting bytes. The deferred cancel in
				// transcode aborts the in-flight upstream read.
				g.logger.Debug("client write failed, aborting stream", zap.Error(err))
				stats.Outcome = metrics.OutcomeFailed
				return stats
			}
			stats.ContentBytes += len(record.Content)

		case backend.EventError:
			// Soft error: reported in the data channel, logged, and the
			// stream continues. The backend decides whether to keep going.
			stats.SoftErrors++
			g.logger.Warn("backend reported stream error",
				zap.String("message", record.Message),
			)

		default:
			stats.UnknownEvents++
			g.logger.Debug("ignoring unknown stream event",
				zap.String("type", record.Type),
			)
		}
	}
}
