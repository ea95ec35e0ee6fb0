package factory

import (
	"testing"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo/json2"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo/xmlrpc"
)

func TestNew_SelectsDialect(t *testing.T) {
	t.Parallel()

	base := odoo.Config{
		URL:      "https://erp.example.com",
		Database: "production",
		APIKey:   "test-key",
	}

	cfg := base
	cfg.Dialect = odoo.DialectXMLRPC
	conn, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New(xmlrpc) error = %v", err)
	}
	if _, ok := conn.(*xmlrpc.Client); !ok {
		t.Fatalf("New(xmlrpc) = %T, want *xmlrpc.Client", conn)
	}

	cfg = base
	cfg.Dialect = odoo.DialectJSON2
	conn, err = New(cfg, nil)
	if err != nil {
		t.Fatalf("New(json2) error = %v", err)
	}
	if _, ok := conn.(*json2.Client); !ok {
		t.Fatalf("New(json2) = %T, want *json2.Client", conn)
	}
}

func TestNew_DefaultsToLegacyDialect(t *testing.T) {
	t.Parallel()

	conn, err := New(odoo.Config{
		URL:      "https://erp.example.com",
		Database: "production",
		Username: "admin",
		Password: "secret",
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := conn.(*xmlrpc.Client); !ok {
		t.Fatalf("New() = %T, want *xmlrpc.Client", conn)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(odoo.Config{Database: "production"}, nil); err == nil {
		t.Fatal("New() succeeded without a url")
	}
	if _, err := New(odoo.Config{
		URL:      "https://erp.example.com",
		Database: "production",
		APIKey:   "k",
		Dialect:  "soap",
	}, nil); err == nil {
		t.Fatal("New() succeeded with unknown dialect")
	}
}
