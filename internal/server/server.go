// Package server wires the MCP surface to the backend connection: tool
// registration, the pre-flight gate (rate limiter, access engine), the
// http transport with bearer verification, and the session keepalive.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/robfig/cron/v3"

	"github.com/pantalytics/odoo-mcp-pro/internal/access"
	"github.com/pantalytics/odoo-mcp-pro/internal/audit"
	"github.com/pantalytics/odoo-mcp-pro/internal/config"
	"github.com/pantalytics/odoo-mcp-pro/internal/oauth"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo/factory"
	"github.com/pantalytics/odoo-mcp-pro/internal/security"
)

const serverName = "odoo-mcp"

// keepaliveSchedule is the interval of the session probe. The legacy
// dialect's session cookie expires server-side when idle; a periodic
// cheap call keeps it warm.
const keepaliveSchedule = "@every 5m"

// Options carries the dependencies New needs.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string
}

// Server owns the MCP server, the backend connection, and everything
// between them.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	version  string
	dialect  string
	conn     odoo.Connection
	engine   *access.Engine
	models   *access.Client // non-nil only in delegated mode
	verifier *oauth.Verifier
	redactor *security.Redactor
	limiter  *security.RateLimiter
	audit    *security.AuditLogger
	store    *audit.Store
	auditOut *os.File
	metrics  *Metrics
	mcp      *mcpsdk.Server
	cron     *cron.Cron
	probeMu  sync.Mutex
}

// New assembles a server from a validated configuration. It does not
// touch the network; Run does.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	redactor := security.NewRedactor()
	creds := security.NewCredentialStore()
	creds.Set("odoo.api_key", cfg.Odoo.APIKey)
	creds.Set("odoo.password", cfg.Odoo.Password)
	creds.Set("oauth.client_secret", cfg.OAuth.ClientSecret)
	redactor.SyncCredentials(creds)
	redactor.AddLiteral(cfg.Odoo.URL)

	odooCfg := cfg.OdooConfig().Normalized()
	conn, err := factory.New(odooCfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		fetcher access.Fetcher
		models  *access.Client
	)
	if access.Mode(cfg.Access.Mode) == access.ModeDelegated {
		models = access.NewClient(odooCfg)
		fetcher = models
	}
	engine, err := access.NewEngine(cfg.AccessConfig(), fetcher)
	if err != nil {
		return nil, err
	}

	var verifier *oauth.Verifier
	if oc := cfg.OAuthConfig(); oc.Enabled() {
		verifier, err = oauth.NewVerifier(oc, logger)
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		version:  opts.Version,
		dialect:  string(odooCfg.Dialect),
		conn:     conn,
		engine:   engine,
		models:   models,
		verifier: verifier,
		redactor: redactor,
		limiter:  security.NewRateLimiter(cfg.RateLimit),
		metrics:  &Metrics{},
	}

	if err := s.openAudit(); err != nil {
		return nil, err
	}

	s.mcp = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: opts.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// openAudit sets up the audit trail: an optional JSONL file and an
// optional SQLite event store, both fed through the redactor.
func (s *Server) openAudit() error {
	auditCfg := security.AuditLoggerConfig{Redactor: s.redactor}

	if path := s.cfg.Audit.LogPath; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("server: opening audit log: %w", err)
		}
		s.auditOut = f
		auditCfg.Writer = f
	}

	if path := s.cfg.Audit.StorePath; path != "" {
		store, err := audit.Open(path)
		if err != nil {
			if s.auditOut != nil {
				s.auditOut.Close()
			}
			return err
		}
		s.store = store
		auditCfg.Sink = store
	}

	s.audit = security.NewAuditLogger(auditCfg)
	return nil
}

// Run connects to the backend, authenticates, and serves the configured
// transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return s.surface(err)
	}
	if err := s.conn.Authenticate(ctx); err != nil {
		s.audit.Log(security.AuditEvent{
			Type:   security.EventAuthFailure,
			Actor:  "local",
			Detail: s.redactor.RedactError(err),
		})
		return s.surface(err)
	}
	s.audit.Log(security.AuditEvent{
		Type:  security.EventAuthSuccess,
		Actor: "local",
		Metadata: map[string]string{
			"database": s.conn.Database(),
			"dialect":  s.dialect,
		},
	})
	s.logger.Info("backend ready",
		"database", s.conn.Database(),
		"dialect", s.dialect,
		"uid", s.conn.UID(),
	)

	if err := s.startKeepalive(); err != nil {
		return err
	}
	defer s.stopKeepalive()

	switch s.cfg.Server.Transport {
	case config.TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
	}
}

// Close releases the connection and the audit outputs.
func (s *Server) Close() error {
	var errs []error
	if err := s.conn.Disconnect(); err != nil {
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.auditOut != nil {
		if err := s.auditOut.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startKeepalive registers the periodic session probe. TryLock skips a
// tick if the previous probe is still in flight.
func (s *Server) startKeepalive() error {
	c := cron.New()
	_, err := c.AddFunc(keepaliveSchedule, func() {
		if !s.probeMu.TryLock() {
			s.logger.Warn("keepalive probe still running, skipping tick")
			return
		}
		defer s.probeMu.Unlock()
		s.keepalive()
	})
	if err != nil {
		return fmt.Errorf("server: keepalive schedule: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Server) stopKeepalive() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// keepalive issues a minimal authenticated call so an idle session is
// not expired server-side.
func (s *Server) keepalive() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	domain := odoo.Domain{odoo.Cond("id", "=", s.conn.UID())}
	if _, err := s.conn.SearchCount(ctx, "res.users", domain); err != nil {
		s.logger.Warn("keepalive probe failed", "error", s.redactor.RedactError(err))
		s.audit.Log(security.AuditEvent{
			Type:   security.EventConnection,
			Actor:  "local",
			Detail: "keepalive probe failed: " + s.redactor.RedactError(err),
		})
		return
	}
	s.logger.Debug("keepalive probe ok")
}

// serveHTTP runs the network listener with graceful shutdown on ctx
// cancellation.
func (s *Server) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http transport listening", "addr", s.cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
