package review

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/joescharf/codelens/internal/apperr"
	"github.com/joescharf/codelens/internal/llm"
	"github.com/joescharf/codelens/internal/models"
	"github.com/joescharf/codelens/internal/store"
)

// Submission is a client's request to review a snippet.
type Submission struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Context  string `json:"context"`
}

// Service runs the review pipeline: prompt, generate, normalize, store.
// Every call is independent; Service holds no per-request state.
type Service struct {
	gateway llm.Gateway
	store   store.Store
	logger  *zap.Logger
}

// NewService creates a review Service.
// The gateway may be nil if no model is configured; submissions then fail
// as generation errors while reads keep working.
func NewService(gw llm.Gateway, s store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateway: gw,
		store:   s,
		logger:  logger.Named("review"),
	}
}

// Submit reviews sub on behalf of owner and persists the result.
// Nothing is stored unless generation and normalization both succeed.
func (s *Service) Submit(ctx context.Context, owner models.Identity, sub Submission) (*models.Review, error) {
	const op = "review.Submit"

	if owner.UID == "" {
		return nil, apperr.Unauthorized(op, errors.New("no identity"))
	}

	prompt, err := llm.BuildPrompt(sub.Code, sub.Language, sub.Context)
	if err != nil {
		return nil, err
	}

	// A caller going away does not abort an in-flight generation.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.String("user_id", owner.UID), zap.String("language", sub.Language))

	if s.gateway == nil {
		log.Error("model gateway not configured")
		return nil, apperr.Generation(op, errors.New("model gateway not configured"))
	}

	raw, err := s.gateway.Generate(ctx, prompt)
	if err != nil {
		log.Error("model generation failed", zap.Error(err))
		return nil, apperr.Generation(op, err)
	}

	analysis, err := Normalize(raw)
	if err != nil {
		log.Error("failed to normalize model response", zap.Error(err), zap.String("raw_response", raw))
		return nil, apperr.Normalization(op, err)
	}

	r := &models.Review{
		UserID:        owner.UID,
		OriginalCode:  sub.Code,
		Language:      sub.Language,
		Context:       sub.Context,
		Issues:        analysis.Issues,
		SeverityScore: analysis.SeverityScore,
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		log.Error("failed to store review", zap.Error(err))
		return nil, apperr.Internal(op, err)
	}

	log.Info("review created",
		zap.String("review_id", r.ID),
		zap.Int("issues", len(r.Issues)),
		zap.Int("severity_score", r.SeverityScore))
	return r, nil
}

// List returns the owner's reviews, newest first.
func (s *Service) List(ctx context.Context, owner models.Identity) ([]*models.Review, error) {
	const op = "review.List"
	if owner.UID == "" {
		return nil, apperr.Unauthorized(op, errors.New("no identity"))
	}
	reviews, err := s.store.ListReviews(ctx, owner.UID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return reviews, nil
}

// Get returns one review if owner created it.
func (s *Service) Get(ctx context.Context, owner models.Identity, id string) (*models.Review, error) {
	const op = "review.Get"
	if owner.UID == "" {
		return nil, apperr.Unauthorized(op, errors.New("no identity"))
	}
	r, err := s.store.GetReview(ctx, id, owner.UID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		return nil, apperr.Internal(op, err)
	}
	return r, nil
}
