// Package oauth verifies inbound bearer tokens against an identity
// provider's RFC 7662 introspection endpoint. The server acts as a
// resource server: tokens may be opaque or revocable server-side, so
// locally decoded claims are never trusted and introspection is mandatory.
// Any provider exposing RFC 7662 semantics works.
package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ErrInvalidToken is returned for every rejection: inactive token,
// introspection failure, audience mismatch, or missing scopes. Callers
// answer 401 in all cases; the distinction is only logged.
var ErrInvalidToken = errors.New("oauth: token rejected")

// defaultTimeout bounds the introspection round trip.
const defaultTimeout = 10 * time.Second

// Config configures the verifier.
type Config struct {
	// IssuerURL is the authorization server base URL, used for the
	// discovery metadata proxied to clients.
	IssuerURL string

	// IntrospectionURL is the RFC 7662 endpoint.
	IntrospectionURL string

	// ClientID and ClientSecret are the verifier's own service
	// credential, sent as Basic auth to the introspection endpoint.
	// Never the backend's credential.
	ClientID     string
	ClientSecret string

	// ExpectedAudience, when set, must appear in the introspected aud
	// claim even for active tokens. Prevents token confusion across
	// instances sharing one identity provider.
	ExpectedAudience string

	// RequiredScopes, when set, must all be present in the token scope.
	RequiredScopes []string

	// Timeout bounds the introspection call. Defaults to 10s.
	Timeout time.Duration
}

// Enabled reports whether bearer verification is configured at all.
func (c Config) Enabled() bool { return c.IssuerURL != "" }

// Validate checks that an enabled config is complete.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	var missing []string
	if c.IntrospectionURL == "" {
		missing = append(missing, "introspection_url")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("oauth: issuer_url is set but missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Identity is the resolved caller attached to the request context after a
// successful verification. Ephemeral: it lives no longer than the request.
type Identity struct {
	Subject   string
	ClientID  string
	Scopes    []string
	Audience  []string
	ExpiresAt time.Time
}

// Verifier validates bearer tokens via remote introspection.
type Verifier struct {
	cfg        Config
	authHeader string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewVerifier creates a verifier from a validated configuration.
func NewVerifier(cfg Config, logger *slog.Logger) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	basic := base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))
	return &Verifier{
		cfg:        cfg,
		authHeader: "Basic " + basic,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// introspection is the RFC 7662 response. Only the claims the verifier
// acts on are decoded.
type introspection struct {
	Active   bool     `json:"active"`
	Scope    string   `json:"scope"`
	ClientID string   `json:"client_id"`
	Subject  string   `json:"sub"`
	Username string   `json:"username"`
	Audience audience `json:"aud"`
	Expiry   int64    `json:"exp"`
}

// audience accepts the aud claim as either a string or a list of strings.
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audience(many)
	return nil
}

// Verify submits token to the introspection endpoint and applies the
// active, audience, and scope checks. Every rejection path returns
// ErrInvalidToken; the token itself never appears in errors or logs.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.IntrospectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: building introspection request", ErrInvalidToken)
	}
	req.Header.Set("Authorization", v.authHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Error("token introspection failed", "error", err)
		return nil, fmt.Errorf("%w: introspection unreachable", ErrInvalidToken)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn("introspection endpoint returned non-200", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: introspection returned HTTP %d", ErrInvalidToken, resp.StatusCode)
	}

	var result introspection
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: malformed introspection response", ErrInvalidToken)
	}

	// An inactive token rejects regardless of any other claim present.
	if !result.Active {
		v.logger.Debug("token is not active")
		return nil, fmt.Errorf("%w: token inactive", ErrInvalidToken)
	}

	if v.cfg.ExpectedAudience != "" && !slices.Contains(result.Audience, v.cfg.ExpectedAudience) {
		v.logger.Warn("token audience mismatch",
			"audience", []string(result.Audience),
			"expected", v.cfg.ExpectedAudience,
		)
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	scopes := strings.Fields(result.Scope)
	for _, required := range v.cfg.RequiredScopes {
		if !slices.Contains(scopes, required) {
			v.logger.Warn("token missing required scope", "scope", required)
			return nil, fmt.Errorf("%w: missing scope %s", ErrInvalidToken, required)
		}
	}

	subject := result.Subject
	if subject == "" {
		subject = result.Username
	}

	id := &Identity{
		Subject:  subject,
		ClientID: result.ClientID,
		Scopes:   scopes,
		Audience: result.Audience,
	}
	if result.Expiry > 0 {
		id.ExpiresAt = time.Unix(result.Expiry, 0)
	}
	return id, nil
}
