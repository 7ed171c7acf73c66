// Package auth verifies bearer credentials and carries the caller's identity
// through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/codelens/internal/models"
)

// ErrInvalidCredential is returned by a Verifier that rejects a token.
var ErrInvalidCredential = errors.New("invalid credential")

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// Modes accepted by New.
const (
	ModeAuto     = "auto"
	ModeFirebase = "firebase"
	ModeStub     = "stub"
)

// Config selects and configures a Verifier.
type Config struct {
	Mode            string
	Credentials     string // service-account JSON
	CredentialsFile string
	StubUID         string
	StubEmail       string
}

// New builds the Verifier chosen by cfg.Mode. In auto mode Firebase is used
// when credentials are configured and the stub otherwise.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Verifier, error) {
	hasCreds := cfg.Credentials != "" || cfg.CredentialsFile != ""

	switch cfg.Mode {
	case ModeFirebase:
		if !hasCreds {
			return nil, fmt.Errorf("auth mode %q requires firebase credentials", ModeFirebase)
		}
		return newFirebaseFromConfig(ctx, cfg)
	case ModeStub:
		return NewStubVerifier(cfg.StubUID, cfg.StubEmail), nil
	case ModeAuto, "":
		if hasCreds {
			return newFirebaseFromConfig(ctx, cfg)
		}
		logger.Warn("firebase credentials missing, every request is authenticated as the stub identity",
			zap.String("uid", cfg.StubUID))
		return NewStubVerifier(cfg.StubUID, cfg.StubEmail), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

func newFirebaseFromConfig(ctx context.Context, cfg Config) (Verifier, error) {
	creds := []byte(cfg.Credentials)
	if len(creds) == 0 {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read firebase credentials: %w", err)
		}
		creds = data
	}
	return NewFirebaseVerifier(ctx, creds)
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.Identity)
	return id, ok && id.UID != ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware rejects requests without a verifiable bearer token before
// calling next. onFail writes the rejection.
func Middleware(v Verifier, logger *zap.Logger, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				onFail(w, r, errors.New("no bearer token provided"))
				return
			}
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("credential rejected", zap.Error(err))
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
