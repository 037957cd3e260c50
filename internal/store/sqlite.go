package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mfalkner/arbiter/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's pool, preventing "database is
	// locked" errors when concurrent consultations record history.
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

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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

// RecordConsultation inserts a consultation history row.
func (s *SQLiteStore) RecordConsultation(ctx context.Context, c *models.Consultation) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	toolsJSON, err := json.Marshal(c.Tools)
	if err != nil {
		return fmt.Errorf("marshal tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consultations (id, subject, kind, tools, verdict, agreement_rate, cache_hit, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Subject, string(c.Kind), string(toolsJSON), string(c.Verdict),
		c.AgreementRate, boolToInt(c.CacheHit), c.Duration.Milliseconds(), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

// GetConsultation fetches one consultation by ID.
func (s *SQLiteStore) GetConsultation(ctx context.Context, id string) (*models.Consultation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject, kind, tools, verdict, agreement_rate, cache_hit, duration_ms, created_at
		FROM consultations WHERE id = ?`, id)
	c, err := scanConsultation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("consultation not found: %s", id)
	}
	return c, err
}

// ListConsultations returns history rows newest first.
func (s *SQLiteStore) ListConsultations(ctx context.Context, filter ConsultationFilter) ([]*models.Consultation, error) {
	query := `SELECT id, subject, kind, tools, verdict, agreement_rate, cache_hit, duration_ms, created_at
		FROM consultations`
	var conds []string
	var args []any

	if filter.Subject != "" {
		conds = append(conds, "subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Verdict != "" {
		conds = append(conds, "verdict = ?")
		args = append(args, string(filter.Verdict))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	defer rows.Close()

	var out []*models.Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PruneConsultations keeps the newest N rows and deletes the rest,
// returning the number deleted.
func (s *SQLiteStore) PruneConsultations(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM consultations WHERE id NOT IN (
			SELECT id FROM consultations ORDER BY created_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune consultations: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsultation(row rowScanner) (*models.Consultation, error) {
	var c models.Consultation
	var kind, verdict, toolsJSON string
	var cacheHit int
	var durationMS int64

	err := row.Scan(&c.ID, &c.Subject, &kind, &toolsJSON, &verdict, &c.AgreementRate, &cacheHit, &durationMS, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Kind = models.ConsultationKind(kind)
	c.Verdict = models.Verdict(verdict)
	c.CacheHit = cacheHit != 0
	c.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(toolsJSON), &c.Tools); err != nil {
		c.Tools = nil
	}
	return &c, nil
}
