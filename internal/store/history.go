package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"vergabeflow/internal/logging"
	"vergabeflow/internal/types"
)

var (
	// ErrNotFound is returned when no analysis matches.
	ErrNotFound = errors.New("analysis not found")
	// ErrAmbiguous is returned when an id prefix matches several analyses.
	ErrAmbiguous = errors.New("analysis id prefix is ambiguous")
)

// Analysis is one persisted requirements analysis.
type Analysis struct {
	ID               string
	Stage            string
	ProcurementType  string
	Description      string
	Questions        []types.Question
	Answers          []types.Answer
	FinalDescription string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Set by MarkExported; zero until a PDF was written.
	ExportedPath string
	ExportedAt   time.Time
}

// Complete reports whether a final description was produced.
func (a Analysis) Complete() bool {
	return strings.TrimSpace(a.FinalDescription) != ""
}

// HistoryStore keeps analyses in a SQLite database.
type HistoryStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// OpenHistory opens or creates the database at path. ":memory:" is accepted.
func OpenHistory(path string) (*HistoryStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenHistory")
	defer timer.Stop()

	log := logging.Get(logging.CategoryStore)
	log.Debugw("opening history store", "path", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debugw("failed to set busy_timeout", "error", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			log.Debugw("failed to set journal_mode=WAL", "error", err)
		}
	}

	s := &HistoryStore{db: db, dbPath: path, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		log.Errorw("failed to initialize schema", "error", err)
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		procurement_type TEXT NOT NULL,
		description TEXT NOT NULL,
		questions TEXT NOT NULL DEFAULT '[]',
		answers TEXT NOT NULL DEFAULT '[]',
		final_description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_updated ON analyses(updated_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create analyses table: %w", err)
	}
	return RunMigrations(s.db)
}

// Path returns the database location.
func (s *HistoryStore) Path() string { return s.dbPath }

// Close closes the database.
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Save inserts or updates a. CreatedAt of an existing row is preserved.
func (s *HistoryStore) Save(ctx context.Context, a Analysis) error {
	if a.ID == "" {
		return fmt.Errorf("analysis id is required")
	}
	questions, err := json.Marshal(nonNil(a.Questions))
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}
	answers, err := json.Marshal(nonNil(a.Answers))
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}

	now := s.now()
	created := a.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, stage, procurement_type, description, questions, answers, final_description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			procurement_type = excluded.procurement_type,
			description = excluded.description,
			questions = excluded.questions,
			answers = excluded.answers,
			final_description = excluded.final_description,
			updated_at = excluded.updated_at`,
		a.ID, a.Stage, a.ProcurementType, a.Description, string(questions), string(answers),
		a.FinalDescription, created.UnixMilli(), updated.UnixMilli(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Errorw("failed to save analysis", "id", a.ID, "error", err)
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	logging.Get(logging.CategoryStore).Debugw("analysis saved", "id", a.ID, "stage", a.Stage)
	return nil
}

const selectColumns = `id, stage, procurement_type, description, questions, answers, final_description, created_at, updated_at, exported_path, exported_at`

// Get returns the analysis with the given id.
func (s *HistoryStore) Get(ctx context.Context, id string) (Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, err
}

// Find resolves a full id or a unique id prefix.
func (s *HistoryStore) Find(ctx context.Context, idOrPrefix string) (Analysis, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return Analysis{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if a, err := s.Get(ctx, idOrPrefix); err == nil || !errors.Is(err, ErrNotFound) {
		return a, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(idOrPrefix) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM analyses WHERE id LIKE ? ESCAPE '\' LIMIT 2`, pattern)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var found []Analysis
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return Analysis{}, err
		}
		found = append(found, a)
	}
	if err := rows.Err(); err != nil {
		return Analysis{}, err
	}

	switch len(found) {
	case 0:
		return Analysis{}, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case 1:
		return found[0], nil
	default:
		return Analysis{}, fmt.Errorf("%w: %s", ErrAmbiguous, idOrPrefix)
	}
}

// List returns up to limit analyses, most recently updated first.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]Analysis, error) {
	timer := logging.StartTimer(logging.CategoryStore, "List")
	defer timer.Stop()

	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM analyses ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkExported records that the analysis was written to path.
func (s *HistoryStore) MarkExported(ctx context.Context, id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE analyses SET exported_path = ?, exported_at = ? WHERE id = ?`,
		path, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to mark export: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes the analysis with the given id.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Analysis, error) {
	var (
		a                  Analysis
		questions, answers string
		created, updated   int64
		exported           int64
	)
	if err := row.Scan(&a.ID, &a.Stage, &a.ProcurementType, &a.Description, &questions, &answers,
		&a.FinalDescription, &created, &updated, &a.ExportedPath, &exported); err != nil {
		return Analysis{}, err
	}
	if err := json.Unmarshal([]byte(questions), &a.Questions); err != nil {
		return Analysis{}, fmt.Errorf("corrupt questions for %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return Analysis{}, fmt.Errorf("corrupt answers for %s: %w", a.ID, err)
	}
	a.CreatedAt = time.UnixMilli(created)
	a.UpdatedAt = time.UnixMilli(updated)
	if exported > 0 {
		a.ExportedAt = time.UnixMilli(exported)
	}
	return a, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
