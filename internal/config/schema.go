// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation. Durations are expressed in
// seconds in the file and converted to typed component configurations.
package config

import (
	"time"

	"github.com/pantalytics/odoo-mcp-pro/internal/access"
	"github.com/pantalytics/odoo-mcp-pro/internal/oauth"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
	"github.com/pantalytics/odoo-mcp-pro/internal/security"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    Server                   `yaml:"server"`
	Odoo      Odoo                     `yaml:"odoo"`
	Access    Access                   `yaml:"access"`
	OAuth     OAuth                    `yaml:"oauth"`
	Audit     Audit                    `yaml:"audit"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`
}

// Server configures the transport and result shaping.
type Server struct {
	// Transport is "stdio" (local subprocess, implicit trust) or "http"
	// (network listener, bearer verification applies).
	Transport string `yaml:"transport"`

	// Listen is the host:port for the http transport.
	Listen string `yaml:"listen"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// DefaultLimit caps search results when the caller asks for none.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the hard ceiling on any requested limit.
	MaxLimit int `yaml:"max_limit"`
}

// Odoo configures the backend connection.
type Odoo struct {
	URL            string `yaml:"url"`
	Database       string `yaml:"database"`
	APIKey         string `yaml:"api_key"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Dialect        string `yaml:"dialect"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Access configures the decision engine.
type Access struct {
	// Mode is bypass, read_bypass, delegated, or native.
	Mode string `yaml:"mode"`

	// TTLSeconds is the lifetime of a cached allowed verdict.
	TTLSeconds int `yaml:"ttl_seconds"`

	// DenyTTLSeconds is the lifetime of a cached denied verdict.
	// Defaults to TTLSeconds.
	DenyTTLSeconds int `yaml:"deny_ttl_seconds"`
}

// OAuth configures bearer token verification for the http transport.
type OAuth struct {
	IssuerURL        string   `yaml:"issuer_url"`
	IntrospectionURL string   `yaml:"introspection_url"`
	ClientID         string   `yaml:"client_id"`
	ClientSecret     string   `yaml:"client_secret"`
	ExpectedAudience string   `yaml:"expected_audience"`
	RequiredScopes   []string `yaml:"required_scopes"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
}

// Audit configures audit output.
type Audit struct {
	// LogPath is the JSONL audit log file. Empty disables file output.
	LogPath string `yaml:"log_path"`

	// StorePath is the SQLite event store. Empty disables persistence.
	StorePath string `yaml:"store_path"`
}

// OdooConfig converts to the typed connection configuration.
func (c *Config) OdooConfig() odoo.Config {
	return odoo.Config{
		URL:      c.Odoo.URL,
		Database: c.Odoo.Database,
		APIKey:   c.Odoo.APIKey,
		Username: c.Odoo.Username,
		Password: c.Odoo.Password,
		Dialect:  odoo.Dialect(c.Odoo.Dialect),
		Timeout:  time.Duration(c.Odoo.TimeoutSeconds) * time.Second,
	}
}

// AccessConfig converts to the typed engine configuration.
func (c *Config) AccessConfig() access.Config {
	return access.Config{
		Mode:    access.Mode(c.Access.Mode),
		TTL:     time.Duration(c.Access.TTLSeconds) * time.Second,
		DenyTTL: time.Duration(c.Access.DenyTTLSeconds) * time.Second,
	}
}

// OAuthConfig converts to the typed verifier configuration.
func (c *Config) OAuthConfig() oauth.Config {
	return oauth.Config{
		IssuerURL:        c.OAuth.IssuerURL,
		IntrospectionURL: c.OAuth.IntrospectionURL,
		ClientID:         c.OAuth.ClientID,
		ClientSecret:     c.OAuth.ClientSecret,
		ExpectedAudience: c.OAuth.ExpectedAudience,
		RequiredScopes:   c.OAuth.RequiredScopes,
		Timeout:          time.Duration(c.OAuth.TimeoutSeconds) * time.Second,
	}
}
