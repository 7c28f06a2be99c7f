package credential

import (
	"sync"

	"github.com/arloliu/notisync/types"
)

// Static is a CredentialProvider with values set in code.
//
// It is safe for concurrent use; Set lets tests simulate a login or logout
// while an engine is running.
type Static struct {
	mu      sync.RWMutex
	subject string
	token   string
}

var _ types.CredentialProvider = (*Static)(nil)

// NewStatic returns a provider that reports subject and token.
func NewStatic(subject, token string) *Static {
	return &Static{subject: subject, token: token}
}

// NewStaticFromToken returns a provider whose subject is the "sub" claim of token.
func NewStaticFromToken(token string) (*Static, error) {
	subject, err := SubjectFromToken(token, "")
	if err != nil {
		return nil, err
	}

	return NewStatic(subject, token), nil
}

// Set replaces both values.
func (s *Static) Set(subject, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subject = subject
	s.token = token
}

// CurrentSubjectID implements types.CredentialProvider.
func (s *Static) CurrentSubjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.subject
}

// AuthToken implements types.CredentialProvider.
func (s *Static) AuthToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}
