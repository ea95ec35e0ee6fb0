// Package security provides credential management, log and error
// redaction, audit logging, and rate limiting. Nothing that leaves the
// process (log lines, audit events, surfaced error messages) may carry
// an API key, a password, or an internal backend URL.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted values.
const RedactPlaceholder = "***REDACTED***"

// defaultPatterns match credential material by shape: bearer and basic
// authorization values, and key=value pairs whose key names a secret.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`Basic\s+[A-Za-z0-9+/=]{8,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|password|client_secret|secret|token)=[^\s&"']+`),
}

// Redactor replaces secrets in strings with RedactPlaceholder. It matches
// both known credential shapes and literal values registered at runtime
// (API keys, passwords, internal URLs). Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a redactor pre-loaded with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: defaultPatterns}
}

// AddLiteral registers a literal value to be redacted on sight. Empty and
// trivially short values are ignored to avoid shredding ordinary text.
func (r *Redactor) AddLiteral(value string) {
	if len(value) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, value)
}

// SyncCredentials replaces the literal set with the current contents of
// the credential store. Call after credentials change.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Redact replaces every known secret in s with RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactError returns the error message with secrets removed, for
// surfacing to the upward collaborator. A nil error yields "".
func (r *Redactor) RedactError(err error) string {
	if err == nil {
		return ""
	}
	return r.Redact(err.Error())
}
