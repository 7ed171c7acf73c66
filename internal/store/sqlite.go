package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/codelens/internal/apperr"
	"github.com/joescharf/codelens/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Each review is one row; its issues are embedded as a JSON document so a
// review is written in a single statement.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection serializes
	// access and avoids "database is locked" under concurrent submissions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string. ulid.Make is monotonic within a
// process, so ids minted in the same millisecond stay unique and ordered.
func newULID() string {
	return ulid.Make().String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Reviews ---

func (s *SQLiteStore) CreateReview(ctx context.Context, r *models.Review) error {
	if r.UserID == "" {
		return fmt.Errorf("create review: user id is required")
	}
	if r.SeverityScore < 0 || r.SeverityScore > models.MaxSeverityScore {
		return fmt.Errorf("create review: severity score %d out of range", r.SeverityScore)
	}

	// Assign into copies so a failed insert leaves the caller's review untouched.
	id := newULID()
	createdAt := time.Now().UTC()
	issues := make([]models.Issue, len(r.Issues))
	copy(issues, r.Issues)
	for i := range issues {
		issues[i].ID = newULID()
	}

	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, user_id, original_code, language, context, issues, severity_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.UserID, r.OriginalCode, r.Language, r.Context,
		string(issuesJSON), r.SeverityScore, createdAt,
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}

	r.ID = id
	r.CreatedAt = createdAt
	r.Issues = issues
	return nil
}

const reviewColumns = `id, user_id, original_code, language, context, issues, severity_score, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*models.Review, error) {
	r := &models.Review{}
	var issuesJSON string
	if err := row.Scan(&r.ID, &r.UserID, &r.OriginalCode, &r.Language, &r.Context,
		&issuesJSON, &r.SeverityScore, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(issuesJSON), &r.Issues); err != nil {
		return nil, fmt.Errorf("decode issues of review %s: %w", r.ID, err)
	}
	if r.Issues == nil {
		r.Issues = []models.Issue{}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id, userID string) (*models.Review, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = ? AND user_id = ?`, id, userID)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.GetReview")
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, userID string) ([]*models.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reviews := make([]*models.Review, 0)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
