// Package header provides header filtering for the relay gateway.
//
// The gateway sits between the browser client and the obrag backend like so:
//
//	Browser <--> Gateway <--> Backend
//
// and headers are handled accordingly as each leg negotiates compression, hops,
// encoding, etc. independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers between gateway connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (browser --> gateway --> backend)
// that are not forwarded to the backend.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// The Host header is rewritten by Go's http.Transport to match the
	// backend URL. Forwarding the browser's Host would confuse virtual-hosted
	// backends.
	"Host": {},

	// Accept-Encoding is stripped so that Go's http.Transport adds its own
	// "Accept-Encoding: gzip" and transparently decompresses the backend
	// response.
	"Accept-Encoding": {},
}

// skipResponse is the set of backend response headers (browser <-- gateway <-- backend)
// that are not copied back to the browser client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// Hop-by-hop headers: fasthttp manages chunked transfer encoding for the
	// client-facing response independently.
	"Transfer-Encoding": {},

	// The gateway always reads a decompressed body (Go's http.Transport strips
	// Content-Encoding after auto-decompression). Forwarding a stale
	// Content-Encoding would claim an encoding the body no longer has.
	// Fiber's compress middleware sets the correct Content-Encoding when it
	// re-compresses the response back down to the client.
	"Content-Encoding": {},

	// The backend Content-Length reflects the (possibly compressed) backend
	// body size. After decompression the length changes, and Fiber's compress
	// middleware may re-compress to a different size. Letting Fiber compute
	// the final Content-Length avoids sending an incorrect value.
	"Content-Length": {},
}

// UpstreamRequestHeaders returns the request headers from the Fiber context
// that should be forwarded to the backend, filtering headers that belong to
// the client-gateway leg only.
func (h *Handler) UpstreamRequestHeaders(c *fiber.Ctx) http.Header {
	out := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			// Add, not Set: repeated headers (e.g. Cookie) keep every value.
			out.Add(k, string(value))
		}
	})
	return out
}

// SetClientResponseHeaders copies response headers from the backend
// http.Response to the Fiber context, filtering headers that the gateway
// should not forward back down to the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
