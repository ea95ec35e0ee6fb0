package odoo

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Dialect identifies which wire protocol a connection speaks.
type Dialect string

const (
	// DialectXMLRPC is the legacy session-based positional-argument RPC,
	// supported by Odoo 14 through 19.
	DialectXMLRPC Dialect = "xmlrpc"

	// DialectJSON2 is the stateless bearer-token named-argument HTTP API
	// introduced in Odoo 19.
	DialectJSON2 Dialect = "json2"
)

// Default endpoint paths for the XML-RPC dialect. The MCP addon exposes
// its own endpoints next to the stock /xmlrpc/2 ones.
const (
	defaultCommonPath = "/mcp/xmlrpc/common"
	defaultObjectPath = "/mcp/xmlrpc/object"
	defaultDBPath     = "/mcp/xmlrpc/db"
)

// DefaultTimeout bounds every backend call unless overridden.
const DefaultTimeout = 30 * time.Second

// Config is the immutable connection configuration shared read-only by
// every component. Created once at process start; replaced wholesale,
// never mutated.
type Config struct {
	// URL is the backend base URL (scheme + host, no trailing slash).
	URL string

	// Database is the target database name. Optional for single-database
	// deployments; the backend resolves it.
	Database string

	// APIKey authenticates JSON/2 calls and may substitute for the
	// password on XML-RPC.
	APIKey string

	// Username and Password are the XML-RPC login credentials. Unused
	// by JSON/2.
	Username string
	Password string

	// Dialect selects the wire protocol. Defaults to DialectXMLRPC.
	Dialect Dialect

	// Timeout bounds every backend call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// CommonPath, ObjectPath, and DBPath override the XML-RPC endpoint
	// paths. Empty means the MCP addon defaults.
	CommonPath string
	ObjectPath string
	DBPath     string
}

// Normalized returns a copy with defaults applied and the URL trimmed.
func (c Config) Normalized() Config {
	c.URL = strings.TrimRight(c.URL, "/")
	if c.Dialect == "" {
		c.Dialect = DialectXMLRPC
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CommonPath == "" {
		c.CommonPath = defaultCommonPath
	}
	if c.ObjectPath == "" {
		c.ObjectPath = defaultObjectPath
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	return c
}

// Validate returns an error if the configuration cannot produce a working
// connection.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("odoo: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("odoo: url is not valid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("odoo: url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("odoo: url is missing a hostname")
	}

	switch c.Dialect {
	case "", DialectXMLRPC:
		if c.APIKey == "" && (c.Username == "" || c.Password == "") {
			return fmt.Errorf("odoo: xmlrpc dialect needs api_key or username+password")
		}
	case DialectJSON2:
		if c.APIKey == "" {
			return fmt.Errorf("odoo: json2 dialect requires api_key")
		}
	default:
		return fmt.Errorf("odoo: unknown dialect %q", c.Dialect)
	}
	return nil
}

// LoginCredential returns the secret used as the XML-RPC password slot:
// the API key when configured, the password otherwise.
func (c Config) LoginCredential() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return c.Password
}
