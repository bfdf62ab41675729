package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CRUD Relay", func() {
	var (
		g       *Gateway
		backend *httptest.Server
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
	})

	Context("when the backend serves a CRUD route", func() {
		var gotMethod, gotPath, gotBody string

		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.RequestURI()
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				io.WriteString(w, `{"id":"proj-1"}`)
			}))
			g = newTestGateway(backend.URL)
		})

		It("forwards method, path, query, and body verbatim", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/projects?archived=false", strings.NewReader(`{"name":"thesis"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := g.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(gotMethod).To(Equal(http.MethodPost))
			Expect(gotPath).To(Equal("/api/projects?archived=false"))
			Expect(gotBody).To(Equal(`{"name":"thesis"}`))
		})

		It("passes the backend status and body back to the client", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"name":"thesis"}`))

			resp, err := g.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"id":"proj-1"}`))
		})

		It("relays nested PARA note paths", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/para/areas/health/notes", nil)

			resp, err := g.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(gotPath).To(Equal("/api/para/areas/health/notes"))
		})
	})

	Context("when the backend is unreachable", func() {
		BeforeEach(func() {
			g = newTestGateway("http://127.0.0.1:1")
		})

		It("returns 502 with a JSON error body", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)

			resp, err := g.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("error"))
		})
	})

	Context("service endpoints", func() {
		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			g = newTestGateway(backend.URL)
		})

		It("serves the health endpoint", func() {
			resp, err := g.server.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("ok"))
		})

		It("exposes gateway metrics", func() {
			resp, err := g.server.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("relay_stream_frames_decoded_total"))
		})
	})
})
