package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// identityContextKey is the unexported key for the verified Identity.
type identityContextKey struct{}

// WithIdentity returns a context carrying the verified caller identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom returns the verified identity attached by the middleware,
// if any. Absent on the stdio transport, where the process boundary is
// the trust boundary.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}

// Middleware returns a chi-compatible middleware that gates every request
// on a verified bearer token. A missing or malformed Authorization header,
// or any introspection rejection, answers 401 with a challenge pointing
// the caller at the discovery metadata.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	challenge := `Bearer resource_metadata="` +
		strings.TrimRight(v.cfg.IssuerURL, "/") + metadataPath + `"`

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				reject(w, challenge)
				return
			}

			id, err := v.Verify(r.Context(), token)
			if err != nil {
				reject(w, challenge)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func reject(w http.ResponseWriter, challenge string) {
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// metadataPath is where clients expect OAuth discovery metadata.
const metadataPath = "/.well-known/oauth-authorization-server"

// MetadataHandler proxies the identity provider's OAuth discovery
// metadata so clients can find the authorization and token endpoints
// without knowing the provider directly.
func MetadataHandler(issuerURL string) http.HandlerFunc {
	issuer := strings.TrimRight(issuerURL, "/")
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                issuer + "/oauth/v2/authorize",
			"token_endpoint":                        issuer + "/oauth/v2/token",
			"scopes_supported":                      []string{"openid", "profile", "email"},
			"response_types_supported":              []string{"code"},
			"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
			"token_endpoint_auth_methods_supported": []string{"none"},
			"code_challenge_methods_supported":      []string{"S256"},
		})
	}
}

// MetadataPath returns the discovery route path for router wiring.
func MetadataPath() string { return metadataPath }
