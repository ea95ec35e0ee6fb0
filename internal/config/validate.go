package config

import (
	"errors"
	"fmt"

	"github.com/pantalytics/odoo-mcp-pro/internal/access"
)

// Transport names accepted by server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Result shaping defaults.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Validate checks the structural validity of a Config. It verifies the
// transport and listener settings, result limits, and delegates to the
// component configurations for connection, access, and OAuth checks.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("config: unsupported transport %q (supported: %q, %q)",
			cfg.Server.Transport, TransportStdio, TransportHTTP))
	}

	if cfg.Server.Transport == TransportHTTP && cfg.Server.Listen == "" {
		errs = append(errs, errors.New("config: server.listen is required for the http transport"))
	}

	switch cfg.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log level %q", cfg.Server.LogLevel))
	}

	if cfg.Server.DefaultLimit <= 0 {
		errs = append(errs, errors.New("config: server.default_limit must be positive"))
	}
	if cfg.Server.MaxLimit <= 0 {
		errs = append(errs, errors.New("config: server.max_limit must be positive"))
	} else if cfg.Server.DefaultLimit > cfg.Server.MaxLimit {
		errs = append(errs, fmt.Errorf("config: server.default_limit %d exceeds server.max_limit %d",
			cfg.Server.DefaultLimit, cfg.Server.MaxLimit))
	}

	if err := cfg.OdooConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	if mode := access.Mode(cfg.Access.Mode); !mode.Valid() {
		errs = append(errs, fmt.Errorf("config: unknown access mode %q", cfg.Access.Mode))
	}
	if cfg.Access.TTLSeconds < 0 {
		errs = append(errs, errors.New("config: access.ttl_seconds must not be negative"))
	}
	if cfg.Access.DenyTTLSeconds < 0 {
		errs = append(errs, errors.New("config: access.deny_ttl_seconds must not be negative"))
	}

	// OAuth is only validated when configured at all; the stdio transport
	// runs without bearer verification.
	if oc := cfg.OAuthConfig(); oc.Enabled() {
		if err := oc.Validate(); err != nil {
			errs = append(errs, err)
		}
	} else if cfg.Server.Transport == TransportHTTP {
		errs = append(errs, errors.New("config: oauth settings are required for the http transport"))
	}

	if cfg.RateLimit.ToolCallsPerMin < 0 {
		errs = append(errs, errors.New("config: rate_limit.tool_calls_per_min must not be negative"))
	}
	if cfg.RateLimit.AuthPerMin < 0 {
		errs = append(errs, errors.New("config: rate_limit.auth_per_min must not be negative"))
	}

	return errors.Join(errs...)
}
