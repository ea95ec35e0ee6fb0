// Package factory constructs the configured connection dialect. Selection
// happens exactly once at startup; nothing above this point ever branches
// on the dialect again.
package factory

import (
	"fmt"
	"log/slog"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo/json2"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo/xmlrpc"
)

// New validates cfg and returns the connection implementation for its
// dialect. The connection is not yet connected or authenticated.
func New(cfg odoo.Config, logger *slog.Logger) (odoo.Connection, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Dialect {
	case odoo.DialectXMLRPC:
		return xmlrpc.New(cfg, logger), nil
	case odoo.DialectJSON2:
		return json2.New(cfg, logger), nil
	default:
		return nil, fmt.Errorf("odoo: unknown dialect %q", cfg.Dialect)
	}
}
