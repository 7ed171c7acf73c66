package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codelens/internal/apperr"
	"github.com/joescharf/codelens/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(n int) *int { return &n }

func sampleReview(userID string) *models.Review {
	return &models.Review{
		UserID:       userID,
		OriginalCode: "function f(x){return x+1}",
		Language:     "JavaScript",
		Context:      "Utility",
		Issues: []models.Issue{
			{
				Category:    models.CategoryCodeQuality,
				Severity:    models.SeverityLow,
				Title:       "Missing semicolon",
				Description: "Statement lacks a terminating semicolon",
				LineNumber:  intPtr(1),
				Explanation: "ASI can produce surprising results.",
			},
			{
				Category:          models.CategoryBestPractices,
				Severity:          models.SeverityMedium,
				Title:             "Non-descriptive name",
				Description:       "f does not describe its purpose",
				Explanation:       "Descriptive names aid readers.",
				RefactoredExample: "function increment(x) { return x + 1; }",
			},
		},
		SeverityScore: 80,
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestCreateReview_AssignsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReview("user-1")
	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, s.CreateReview(ctx, r))

	assert.NotEmpty(t, r.ID)
	assert.True(t, r.CreatedAt.After(before))
	require.Len(t, r.Issues, 2)

	seen := map[string]bool{r.ID: true}
	for _, issue := range r.Issues {
		assert.NotEmpty(t, issue.ID)
		assert.False(t, seen[issue.ID], "issue ids must be unique")
		seen[issue.ID] = true
	}
}

func TestCreateReview_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := sampleReview("user-1")
	require.NoError(t, s.CreateReview(ctx, created))

	got, err := s.GetReview(ctx, created.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.UserID, got.UserID)
	assert.Equal(t, created.OriginalCode, got.OriginalCode)
	assert.Equal(t, created.Language, got.Language)
	assert.Equal(t, created.Context, got.Context)
	assert.Equal(t, created.SeverityScore, got.SeverityScore)
	assert.Equal(t, created.Issues, got.Issues)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt), "created %v, got %v", created.CreatedAt, got.CreatedAt)

	// Fetching again returns the same server-assigned values.
	again, err := s.GetReview(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, got.Issues, again.Issues)
	assert.True(t, got.CreatedAt.Equal(again.CreatedAt))
}

func TestCreateReview_EmptyIssues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReview("user-1")
	r.Issues = nil
	r.SeverityScore = 100
	require.NoError(t, s.CreateReview(ctx, r))

	got, err := s.GetReview(ctx, r.ID, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, got.Issues)
	assert.Empty(t, got.Issues)
}

func TestCreateReview_Rejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("missing owner", func(t *testing.T) {
		r := sampleReview("")
		assert.Error(t, s.CreateReview(ctx, r))
		assert.Empty(t, r.ID)
	})

	t.Run("score out of range", func(t *testing.T) {
		for _, score := range []int{-1, 101} {
			r := sampleReview("user-1")
			r.SeverityScore = score
			assert.Error(t, s.CreateReview(ctx, r))
		}
	})

	reviews, err := s.ListReviews(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestGetReview_OwnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReview("alice")
	require.NoError(t, s.CreateReview(ctx, r))

	_, err := s.GetReview(ctx, r.ID, "bob")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, missingErr := s.GetReview(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", "alice")
	require.Error(t, missingErr)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(missingErr))

	// Foreign and missing are indistinguishable.
	assert.Equal(t, err.Error(), missingErr.Error())
}

func TestListReviews_NewestFirstAndScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		r := sampleReview("alice")
		r.SeverityScore = 50 + i
		require.NoError(t, s.CreateReview(ctx, r))
		ids = append(ids, r.ID)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.CreateReview(ctx, sampleReview("bob")))

	reviews, err := s.ListReviews(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, ids[2], reviews[0].ID)
	assert.Equal(t, ids[1], reviews[1].ID)
	assert.Equal(t, ids[0], reviews[2].ID)
	for _, r := range reviews {
		assert.Equal(t, "alice", r.UserID)
	}

	none, err := s.ListReviews(ctx, "carol")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCreateReview_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.CreateReview(ctx, sampleReview(fmt.Sprintf("user-%d", i%2)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	a, err := s.ListReviews(ctx, "user-0")
	require.NoError(t, err)
	b, err := s.ListReviews(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, a, n/2)
	assert.Len(t, b, n/2)
}
