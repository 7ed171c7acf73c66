package auth

import (
	"context"
	"fmt"

	"github.com/joescharf/codelens/internal/models"
)

// Defaults for the stub identity.
const (
	DefaultStubUID   = "mock-user-id"
	DefaultStubEmail = "mock@example.com"
)

// StubVerifier accepts any non-empty token and returns a fixed identity.
// It is meant for local development and tests without identity credentials.
type StubVerifier struct {
	identity models.Identity
}

// NewStubVerifier returns a StubVerifier for uid/email, falling back to the defaults.
func NewStubVerifier(uid, email string) *StubVerifier {
	if uid == "" {
		uid = DefaultStubUID
	}
	if email == "" {
		email = DefaultStubEmail
	}
	return &StubVerifier{identity: models.Identity{UID: uid, Email: email}}
}

func (s *StubVerifier) Verify(_ context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}
	return s.identity, nil
}
