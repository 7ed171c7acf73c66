package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joescharf/codelens/internal/apperr"
	"github.com/joescharf/codelens/internal/auth"
	"github.com/joescharf/codelens/internal/models"
	"github.com/joescharf/codelens/internal/review"
	"github.com/joescharf/codelens/internal/stats"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// Options configures the HTTP surface.
type Options struct {
	BasePath     string // prefix for review routes, e.g. "/api"
	MaxBodyBytes int64
	CORSOrigin   string
}

// Server provides the REST API handlers.
type Server struct {
	reviews  *review.Service
	verifier auth.Verifier
	logger   *zap.Logger
	opts     Options
}

// NewServer creates a new API server.
func NewServer(svc *review.Service, v auth.Verifier, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.BasePath = "/" + strings.Trim(opts.BasePath, "/")
	if opts.BasePath == "/" {
		opts.BasePath = ""
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return &Server{
		reviews:  svc,
		verifier: v,
		logger:   logger.Named("api"),
		opts:     opts,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	protected := auth.Middleware(s.verifier, s.logger, s.unauthorized)
	base := s.opts.BasePath
	mux.Handle("POST "+base+"/reviews", protected(http.HandlerFunc(s.createReview)))
	mux.Handle("GET "+base+"/reviews", protected(http.HandlerFunc(s.listReviews)))
	mux.Handle("GET "+base+"/reviews/stats", protected(http.HandlerFunc(s.reviewStats)))
	mux.Handle("GET "+base+"/reviews/{id}", protected(http.HandlerFunc(s.getReview)))

	return s.requestID(s.accessLog(s.corsMiddleware(mux)))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// requestID propagates X-Request-ID, minting one when the client sent none.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := contextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindInput:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError writes err with its kind's status and client-safe message.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.logger.Error("request failed",
			zap.Error(err),
			zap.String("request_id", requestIDFrom(r.Context())))
	}
	writeError(w, statusFor(kind), apperr.Message(err))
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	s.writeAppError(w, r, apperr.Unauthorized("api.auth", err))
}

// caller returns the identity set by the auth middleware.
func caller(r *http.Request) models.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// --- Health ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Reviews ---

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var sub review.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	rv, err := s.reviews.Submit(r.Context(), caller(r), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.reviews.List(r.Context(), caller(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	rv, err := s.reviews.Get(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (s *Server) reviewStats(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.reviews.List(r.Context(), caller(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Summarize(reviews))
}
