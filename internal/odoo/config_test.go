package odoo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestConfig_NormalizedDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{URL: "https://odoo.example.com/"}
	norm := cfg.Normalized()

	if norm.URL != "https://odoo.example.com" {
		t.Errorf("URL = %q, want trailing slash trimmed", norm.URL)
	}
	if norm.Dialect != DialectXMLRPC {
		t.Errorf("Dialect = %q, want %q", norm.Dialect, DialectXMLRPC)
	}
	if norm.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", norm.Timeout, DefaultTimeout)
	}
	if norm.CommonPath != "/mcp/xmlrpc/common" {
		t.Errorf("CommonPath = %q", norm.CommonPath)
	}
	if norm.ObjectPath != "/mcp/xmlrpc/object" {
		t.Errorf("ObjectPath = %q", norm.ObjectPath)
	}
	if norm.DBPath != "/mcp/xmlrpc/db" {
		t.Errorf("DBPath = %q", norm.DBPath)
	}
}

func TestConfig_NormalizedKeepsOverrides(t *testing.T) {
	t.Parallel()

	cfg := Config{
		URL:        "https://odoo.example.com",
		Dialect:    DialectJSON2,
		Timeout:    5 * time.Second,
		CommonPath: "/xmlrpc/2/common",
	}
	norm := cfg.Normalized()

	if norm.Dialect != DialectJSON2 {
		t.Errorf("Dialect = %q", norm.Dialect)
	}
	if norm.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", norm.Timeout)
	}
	if norm.CommonPath != "/xmlrpc/2/common" {
		t.Errorf("CommonPath = %q", norm.CommonPath)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing url",
			cfg:     Config{APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "bad scheme",
			cfg:     Config{URL: "ftp://odoo.example.com", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "xmlrpc with api key",
			cfg:     Config{URL: "https://odoo.example.com", Dialect: DialectXMLRPC, APIKey: "k"},
			wantErr: false,
		},
		{
			name:    "xmlrpc with username and password",
			cfg:     Config{URL: "https://odoo.example.com", Username: "admin", Password: "pw"},
			wantErr: false,
		},
		{
			name:    "xmlrpc without credentials",
			cfg:     Config{URL: "https://odoo.example.com", Username: "admin"},
			wantErr: true,
		},
		{
			name:    "json2 requires api key",
			cfg:     Config{URL: "https://odoo.example.com", Dialect: DialectJSON2, Password: "pw"},
			wantErr: true,
		},
		{
			name:    "json2 with api key",
			cfg:     Config{URL: "https://odoo.example.com", Dialect: DialectJSON2, APIKey: "k"},
			wantErr: false,
		},
		{
			name:    "unknown dialect",
			cfg:     Config{URL: "https://odoo.example.com", Dialect: "soap", APIKey: "k"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_LoginCredentialPrefersAPIKey(t *testing.T) {
	t.Parallel()

	cfg := Config{APIKey: "key", Password: "pw"}
	if got := cfg.LoginCredential(); got != "key" {
		t.Errorf("LoginCredential = %q, want key", got)
	}

	cfg.APIKey = ""
	if got := cfg.LoginCredential(); got != "pw" {
		t.Errorf("LoginCredential = %q, want pw", got)
	}
}

func TestRetryTransient_RetriesOnlyUnavailable(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryTransient(t.Context(), func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("probe: %w", ErrUnavailable)
		}
		return nil
	})
	if err != nil {
		t.Errorf("err = %v, want nil after retry", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryTransient_FatalNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryTransient(t.Context(), func() error {
		calls++
		return fmt.Errorf("login: %w", ErrAuthentication)
	})
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("err = %v, want ErrAuthentication", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryTransient_CancelledContextSkipsRetry(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	calls := 0
	err := RetryTransient(ctx, func() error {
		calls++
		return ErrUnavailable
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
