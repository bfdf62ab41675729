package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/obragco/relay/pkg/logger"
	"github.com/obragco/relay/pkg/uistream"
)

// newTestGateway creates a Gateway pointed at the given backend URL.
func newTestGateway(backendURL string) *Gateway {
	g, err := New(
		Config{
			ListenAddr: ":0",
			BackendURL: backendURL,
		},
		logger.Nop(),
	)
	Expect(err).NotTo(HaveOccurred())
	return g
}

// chatBody builds a minimal valid chat request body.
func chatBody(question string) *strings.Reader {
	body, err := json.Marshal(map[string]any{
		"messages": []map[string]any{
			{"role": "user", "content": question},
		},
	})
	Expect(err).NotTo(HaveOccurred())
	return strings.NewReader(string(body))
}

// postChat runs one chat request through the gateway and returns the
// response and its full body.
func postChat(g *Gateway, body io.Reader) (*http.Response, string) {
	req := httptest.NewRequest(http.MethodPost, ChatPath, body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.server.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	resp.Body.Close()

	return resp, string(raw)
}

// decodeStream parses the client-facing SSE frames, stopping at [DONE].
func decodeStream(raw string) ([]uistream.Event, bool) {
	var events []uistream.Event
	done := false

	for _, frame := range strings.Split(raw, "\n\n") {
		if frame == "" {
			continue
		}
		data, found := strings.CutPrefix(frame, "data: ")
		Expect(found).To(BeTrue(), "frame without data prefix: %q", frame)

		if data == "[DONE]" {
			done = true
			continue
		}

		var ev uistream.Event
		Expect(json.Unmarshal([]byte(data), &ev)).To(Succeed(), "frame: %q", data)
		events = append(events, ev)
	}

	return events, done
}

// eventTypes projects the type discriminants in order.
func eventTypes(events []uistream.Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// concatDeltas joins all text-delta fragments in order.
func concatDeltas(events []uistream.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == uistream.TypeTextDelta {
			b.WriteString(ev.Delta)
		}
	}
	return b.String()
}

// sseBackend builds an httptest server that writes the given chunks to the
// answer-stream route, flushing after each chunk so the gateway sees the
// exact fragmentation.
func sseBackend(askCalls *atomic.Int64, chunks ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if askCalls != nil {
			askCalls.Add(1)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, chunk := range chunks {
			fmt.Fprint(w, chunk)
			flusher.Flush()
		}
	}))
}

var _ = Describe("Chat Stream Transcoding", func() {
	var (
		g        *Gateway
		backend  *httptest.Server
		askCalls atomic.Int64
	)

	AfterEach(func() {
		if g != nil {
			g.Close()
			g = nil
		}
		if backend != nil {
			backend.Close()
			backend = nil
		}
		askCalls.Store(0)
	})

	Context("when the backend streams two content frames", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"content\",\"content\":\"Hi\"}\n\n",
				"data: {\"type\":\"content\",\"content\":\" there\"}\n\n",
			)
			g = newTestGateway(backend.URL)
		})

		It("emits open, two appends, and close", func() {
			resp, raw := postChat(g, chatBody("Say hi"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			events, done := decodeStream(raw)
			Expect(eventTypes(events)).To(Equal([]string{
				uistream.TypeTextStart,
				uistream.TypeTextDelta,
				uistream.TypeTextDelta,
				uistream.TypeTextEnd,
			}))
			Expect(concatDeltas(events)).To(Equal("Hi there"))
			Expect(done).To(BeTrue())
		})

		It("keys every event to one message id", func() {
			_, raw := postChat(g, chatBody("Say hi"))

			events, _ := decodeStream(raw)
			Expect(events).NotTo(BeEmpty())
			id := events[0].ID
			Expect(id).NotTo(BeEmpty())
			for _, ev := range events {
				Expect(ev.ID).To(Equal(id))
			}
		})

		It("sets event-stream response headers", func() {
			resp, _ := postChat(g, chatBody("Say hi"))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
		})
	})

	Context("when a frame is fragmented inside its JSON payload", func() {
		BeforeEach(func() {
			// The first frame's bytes arrive split mid-payload; buffering in
			// the frame splitter must mask the split entirely.
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"cont",
				"ent\",\"content\":\"Hi\"}\n\n",
				"data: {\"type\":\"content\",\"content\":\" there\"}\n\n",
			)
			g = newTestGateway(backend.URL)
		})

		It("produces output identical to the unfragmented stream", func() {
			_, raw := postChat(g, chatBody("Say hi"))

			events, done := decodeStream(raw)
			Expect(eventTypes(events)).To(Equal([]string{
				uistream.TypeTextStart,
				uistream.TypeTextDelta,
				uistream.TypeTextDelta,
				uistream.TypeTextEnd,
			}))
			Expect(concatDeltas(events)).To(Equal("Hi there"))
			Expect(done).To(BeTrue())
		})
	})

	Context("when the frame delimiter itself is split across chunks", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"content\",\"content\":\"Hi\"}\n",
				"\ndata: {\"type\":\"content\",\"content\":\" there\"}\n\n",
			)
			g = newTestGateway(backend.URL)
		})

		It("still yields both fragments in order", func() {
			_, raw := postChat(g, chatBody("Say hi"))

			events, _ := decodeStream(raw)
			Expect(concatDeltas(events)).To(Equal("Hi there"))
		})
	})

	Context("when the final frame has no trailing delimiter", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"content\",\"content\":\"Hi\"}\n\n",
				"data: {\"type\":\"content\",\"content\":\" there\"}",
			)
			g = newTestGateway(backend.URL)
		})

		It("processes the undelimited tail before finalizing", func() {
			_, raw := postChat(g, chatBody("Say hi"))

			events, done := decodeStream(raw)
			Expect(concatDeltas(events)).To(Equal("Hi there"))
			Expect(done).To(BeTrue())
		})
	})

	Context("when an error record sits between two content frames", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"content\",\"content\":\"Hi\"}\n\n",
				"data: {\"type\":\"error\",\"message\":\"rate limited\"}\n\n",
				"data: {\"type\":\"content\",\"content\":\" there\"}\n\n",
			)
			g = newTestGateway(backend.URL)
		})

		It("logs the soft error and keeps streaming around it", func() {
			_, raw := postChat(g, chatBody("Say hi"))

			events, done := decodeStream(raw)
			Expect(eventTypes(events)).To(Equal([]string{
				uistream.TypeTextStart,
				uistream.TypeTextDelta,
				uistream.TypeTextDelta,
				uistream.TypeTextEnd,
			}))
			Expect(concatDeltas(events)).To(Equal("Hi there"))
			Expect(raw).NotTo(ContainSubstring("rate limited"))
			Expect(done).To(BeTrue())
		})
	})

	Context("when the stream contains a malformed frame", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"content\",\"content\":\"Hi\"}\n\n",
				"data: {\"type\":\"content\",\n\n",
				"data: {\"type\":\"content\",\"content\":\" there\"}\n\n",
			)
			g = newTestGateway(backend.URL)
		})

		It("skips the frame and processes the frames after it", func() {
			_, raw := postChat(g, chatBody("Say hi"))

			events, done := decodeStream(raw)
			Expect(concatDeltas(events)).To(Equal("Hi there"))
			Expect(done).To(BeTrue())
		})
	})

	Context("when the stream contains unknown event kinds", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"citation\",\"source\":\"notes/para.md\"}\n\n",
				"data: {\"type\":\"content\",\"content\":\"answer\"}\n\n",
				"data: {\"type\":\"tool_call\",\"name\":\"search\"}\n\n",
			)
			g = newTestGateway(backend.URL)
		})

		It("ignores them without crashing the stream", func() {
			_, raw := postChat(g, chatBody("Say hi"))

			events, done := decodeStream(raw)
			Expect(concatDeltas(events)).To(Equal("answer"))
			Expect(done).To(BeTrue())
		})
	})

	Context("when the backend streams no content at all", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls,
				"data: {\"type\":\"error\",\"message\":\"no documents indexed\"}\n\n",
			)
			g = newTestGateway(backend.URL)
		})

		It("never opens a message and still terminates the stream", func() {
			resp, raw := postChat(g, chatBody("Say hi"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			events, done := decodeStream(raw)
			Expect(events).To(BeEmpty())
			Expect(done).To(BeTrue())
		})
	})

	Context("when the client body has no messages", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls)
			g = newTestGateway(backend.URL)
		})

		It("fails with 400 and never calls the backend", func() {
			resp, raw := postChat(g, strings.NewReader(`{"messages":[]}`))

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(raw).To(ContainSubstring("error"))
			Expect(askCalls.Load()).To(BeZero())
		})
	})

	Context("when the extracted question is empty", func() {
		BeforeEach(func() {
			backend = sseBackend(&askCalls)
			g = newTestGateway(backend.URL)
		})

		It("fails with 400 and never calls the backend", func() {
			body := `{"messages":[{"role":"user","parts":[{"type":"image"}]}]}`
			resp, _ := postChat(g, strings.NewReader(body))

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(askCalls.Load()).To(BeZero())
		})
	})

	Context("when the backend rejects the request before streaming", func() {
		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			}))
			g = newTestGateway(backend.URL)
		})

		It("passes the status through and emits no stream events", func() {
			resp, raw := postChat(g, chatBody("Say hi"))

			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(raw).NotTo(ContainSubstring(uistream.TypeTextStart))
			Expect(raw).NotTo(ContainSubstring("[DONE]"))
		})
	})

	Context("when the client disconnects mid-stream", func() {
		var upstreamCancelled chan struct{}

		BeforeEach(func() {
			upstreamCancelled = make(chan struct{})
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher, ok := w.(http.Flusher)
				Expect(ok).To(BeTrue())

				// Keep producing frames until the gateway hangs up; the
				// cancellation is only observable once a downstream write fails.
				ticker := time.NewTicker(10 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-r.Context().Done():
						close(upstreamCancelled)
						return
					case <-ticker.C:
						fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"tick\"}\n\n")
						flusher.Flush()
					}
				}
			}))
			g = newTestGateway(backend.URL)
		})

		It("cancels the backend request and stops the read loop", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			go g.RunWithListener(ln)

			req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+ChatPath, chatBody("Say hi"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			// Read enough to know streaming started, then walk away.
			buf := make([]byte, 64)
			_, err = resp.Body.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Eventually(upstreamCancelled, "2s").Should(BeClosed())
		})
	})

	Context("when the stream exceeds the wall-clock ceiling", func() {
		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher, ok := w.(http.Flusher)
				Expect(ok).To(BeTrue())

				fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"partial\"}\n\n")
				flusher.Flush()

				// Hold the stream open until the gateway gives up.
				<-r.Context().Done()
			}))

			var err error
			g, err = New(
				Config{
					ListenAddr:    ":0",
					BackendURL:    backend.URL,
					StreamTimeout: 150 * time.Millisecond,
				},
				logger.Nop(),
			)
			Expect(err).NotTo(HaveOccurred())
		})

		It("seals the partial message with close and [DONE]", func() {
			resp, raw := postChat(g, chatBody("Say hi"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			events, done := decodeStream(raw)
			Expect(eventTypes(events)).To(Equal([]string{
				uistream.TypeTextStart,
				uistream.TypeTextDelta,
				uistream.TypeTextEnd,
			}))
			Expect(concatDeltas(events)).To(Equal("partial"))
			Expect(done).To(BeTrue())
		})
	})

	Context("when per-request overrides are supplied", func() {
		var gotPayload map[string]any

		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(json.NewDecoder(r.Body).Decode(&gotPayload)).To(Succeed())
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"ok\"}\n\n")
			}))
			g = newTestGateway(backend.URL)
		})

		It("merges session id and settings into the backend payload", func() {
			body := `{
				"messages":[{"role":"user","content":"hi"}],
				"session_id":"sess-7",
				"settings":{"llm_provider":"openai","llm_model":"gpt-4o","api_key":"sk-test"}
			}`
			postChat(g, strings.NewReader(body))

			Expect(gotPayload["question"]).To(Equal("hi"))
			Expect(gotPayload["session_id"]).To(Equal("sess-7"))
			Expect(gotPayload["llm_provider"]).To(Equal("openai"))
			Expect(gotPayload["llm_model"]).To(Equal("gpt-4o"))
			Expect(gotPayload["api_key"]).To(Equal("sk-test"))
		})
	})
})
