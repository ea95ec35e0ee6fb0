package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pantalytics/odoo-mcp-pro/internal/oauth"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
	"github.com/pantalytics/odoo-mcp-pro/internal/security"
)

// router constructs the chi mux for the http transport.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", s.handleHealth())
	r.Get(oauth.MetadataPath(), oauth.MetadataHandler(s.cfg.OAuth.IssuerURL))

	// MCP endpoint. Bearer verification applies; the handler serves
	// POST, GET, and DELETE on the same path.
	mcpHandler := mcpsdk.NewStreamableHTTPHandler(
		func(*http.Request) *mcpsdk.Server { return s.mcp },
		nil,
	)
	r.Group(func(r chi.Router) {
		r.Use(s.authRateLimit)
		if s.verifier != nil {
			r.Use(oauth.Middleware(s.verifier))
		}
		r.Handle("/mcp", mcpHandler)
	})

	return r
}

// authRateLimit throttles credential presentation ahead of the verifier
// so an attacker cannot burn introspection round-trips.
func (s *Server) authRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			if err := s.limiter.Allow(security.BucketAuth); err != nil {
				s.metrics.RecordRateLimited()
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recentFailureLimit caps how many stored failures /health reports.
const recentFailureLimit = 5

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status         string                `json:"status"` // "ok" or "degraded"
	Dialect        string                `json:"dialect"`
	Database       string                `json:"database"`
	ServerVersion  *odoo.Version         `json:"server_version,omitempty"`
	Authenticated  bool                  `json:"authenticated"`
	Metrics        MetricsSnapshot       `json:"metrics"`
	RecentFailures []security.AuditEvent `json:"recent_failures,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 while the backend session is live, 503 otherwise.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:        "ok",
			Dialect:       s.dialect,
			Database:      s.conn.Database(),
			ServerVersion: s.conn.ServerVersion(),
			Authenticated: s.conn.IsAuthenticated(),
			Metrics:       s.metrics.Snapshot(),
		}
		if !s.conn.IsConnected() || !s.conn.IsAuthenticated() {
			resp.Status = "degraded"
		}
		if s.store != nil {
			if failures, err := s.store.RecentFailures(r.Context(), recentFailureLimit); err == nil {
				resp.RecentFailures = failures
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
