package security

import "sync"

// CredentialStore is a thread-safe store for sensitive values: the
// backend API key, login password, and the verifier's client secret. It
// is the single source of truth for secrets at runtime; its contents
// feed the Redactor so no stored value can leak through logs or errors.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set stores a credential, overwriting any existing value. Empty values
// are dropped so the redactor never learns a zero-length literal.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.creds, name)
		return
	}
	s.creds[name] = value
}

// Get returns the credential value and whether it exists.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Values returns all stored values, for registering with a Redactor.
// Order is not guaranteed.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		values = append(values, v)
	}
	return values
}
