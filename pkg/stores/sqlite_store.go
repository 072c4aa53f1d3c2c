package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath keeps the journal in process.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// SQLiteStore is the release journal backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// every connection to :memory: would see its own database
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection. File databases use WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite"
	if s.path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite", s.path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// NewID returns a fresh identifier for sessions and actions.
func NewID() string {
	return uuid.NewString()
}

// CreateSession inserts a session. An empty ID is filled in.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = NewID()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	session.StartedAt = session.StartedAt.UTC()

	query := `
		INSERT INTO sessions (id, repo, pipeline, staging_app, production_app, operator, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.Repo,
		session.Pipeline,
		session.StagingApp,
		session.ProductionApp,
		session.Operator,
		session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateSessionTargets records the pipeline and apps once they are resolved.
func (s *SQLiteStore) UpdateSessionTargets(ctx context.Context, id, pipeline, staging, production string) error {
	query := `
		UPDATE sessions
		SET pipeline = ?, staging_app = ?, production_app = ?
		WHERE id = ?
	`
	return s.execOne(ctx, "session", id, query, pipeline, staging, production, id)
}

// EndSession stores the exit code and error of a finished session.
func (s *SQLiteStore) EndSession(ctx context.Context, id string, exitCode int, errMsg *string) error {
	query := `
		UPDATE sessions
		SET ended_at = ?, exit_code = ?, error = ?
		WHERE id = ?
	`
	return s.execOne(ctx, "session", id, query, time.Now().UTC(), exitCode, errMsg, id)
}

// GetSession retrieves a session by ID
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, repo, pipeline, staging_app, production_app, operator, started_at, ended_at, exit_code, error
		FROM sessions
		WHERE id = ?
	`

	session := &Session{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.Repo,
		&session.Pipeline,
		&session.StagingApp,
		&session.ProductionApp,
		&session.Operator,
		&session.StartedAt,
		&session.EndedAt,
		&session.ExitCode,
		&session.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions lists sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, repo, pipeline, staging_app, production_app, operator, started_at, ended_at, exit_code, error
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session := &Session{}
		err := rows.Scan(
			&session.ID,
			&session.Repo,
			&session.Pipeline,
			&session.StagingApp,
			&session.ProductionApp,
			&session.Operator,
			&session.StartedAt,
			&session.EndedAt,
			&session.ExitCode,
			&session.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// RecordAction inserts an action. An empty ID is filled in.
func (s *SQLiteStore) RecordAction(ctx context.Context, action *Action) error {
	if action.ID == "" {
		action.ID = NewID()
	}
	action.StartedAt = action.StartedAt.UTC()

	query := `
		INSERT INTO actions (id, session_id, action, phase, release_tag, outcome, exit_code, message, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		action.ID,
		action.SessionID,
		action.Action,
		action.Phase,
		action.ReleaseTag,
		action.Outcome,
		action.ExitCode,
		action.Message,
		action.StartedAt,
		action.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// ListActions lists actions joined with their session, newest first.
func (s *SQLiteStore) ListActions(ctx context.Context, filter ActionFilter, limit, offset int) ([]*ActionEntry, error) {
	query := `
		SELECT a.id, a.session_id, a.action, a.phase, a.release_tag, a.outcome, a.exit_code,
		       a.message, a.started_at, a.duration_ms,
		       s.repo, s.pipeline, s.production_app, s.operator
		FROM actions a
		JOIN sessions s ON s.id = a.session_id
		WHERE (? IS NULL OR s.repo = ?)
		  AND (? IS NULL OR a.action = ?)
		  AND (? IS NULL OR a.outcome = ?)
		ORDER BY a.started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.Repo, filter.Repo,
		filter.Action, filter.Action,
		filter.Outcome, filter.Outcome,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	entries := []*ActionEntry{}
	for rows.Next() {
		entry := &ActionEntry{}
		var durationMs int64
		err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.Action.Action,
			&entry.Phase,
			&entry.ReleaseTag,
			&entry.Outcome,
			&entry.ExitCode,
			&entry.Message,
			&entry.StartedAt,
			&durationMs,
			&entry.Repo,
			&entry.Pipeline,
			&entry.ProductionApp,
			&entry.Operator,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return entries, nil
}

// RecordObservation appends a phase observation.
func (s *SQLiteStore) RecordObservation(ctx context.Context, obs *Observation) error {
	if obs.Pointers == "" {
		obs.Pointers = "{}"
	}
	obs.ObservedAt = obs.ObservedAt.UTC()

	query := `
		INSERT INTO observations (session_id, phase, release_tag, pointers, observed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		obs.SessionID,
		obs.Phase,
		obs.ReleaseTag,
		obs.Pointers,
		obs.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record observation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get observation ID: %w", err)
	}
	obs.ID = id
	return nil
}

// ListObservations returns the observations of a session in order.
func (s *SQLiteStore) ListObservations(ctx context.Context, sessionID string) ([]*Observation, error) {
	query := `
		SELECT id, session_id, phase, release_tag, pointers, observed_at
		FROM observations
		WHERE session_id = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	out := []*Observation{}
	for rows.Next() {
		obs := &Observation{}
		if err := rows.Scan(&obs.ID, &obs.SessionID, &obs.Phase, &obs.ReleaseTag, &obs.Pointers, &obs.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}
	return out, nil
}

// DeleteSessionsBefore removes sessions started before t together with
// their actions and observations.
func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) execOne(ctx context.Context, kind, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
