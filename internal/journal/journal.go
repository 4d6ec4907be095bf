// Package journal records mode transitions in SQLite.
// It uses the pure-Go modernc.org/sqlite driver.
//
// The journal is write-mostly history for inspection. It is never used to
// restore the light's state; the machine always starts at rest.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"bouncelight/internal/motion"
)

// Transition is one mode change observed by the tick loop.
type Transition struct {
	ID         int64
	From       motion.Mode
	To         motion.Mode
	At         motion.Millis
	Position   float64
	Speed      float64
	RecordedAt time.Time
}

// Store manages the journal database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path, creating parent directories and
// running migrations. The path is used as given; callers expand "~".
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: cannot open database: %w", err)
	}
	// One writer goroutine; avoid SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: cannot connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_mode TEXT NOT NULL,
			to_mode TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			position REAL NOT NULL,
			speed REAL NOT NULL,
			recorded_at_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_to_mode ON transitions(to_mode);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends a transition and returns its row ID.
// A zero RecordedAt is replaced with the current time.
func (s *Store) Record(ctx context.Context, tr Transition) (int64, error) {
	if tr.RecordedAt.IsZero() {
		tr.RecordedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (from_mode, to_mode, at_ms, position, speed, recorded_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tr.From.String(), tr.To.String(), int64(tr.At), tr.Position, tr.Speed, tr.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("journal: cannot record transition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: cannot get insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit transitions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_mode, to_mode, at_ms, position, speed, recorded_at_ms
		 FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: cannot query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr       Transition
			from, to string
			at       int64
			recorded int64
		)
		if err := rows.Scan(&tr.ID, &from, &to, &at, &tr.Position, &tr.Speed, &recorded); err != nil {
			return nil, fmt.Errorf("journal: cannot scan transition: %w", err)
		}
		if tr.From, err = motion.ParseMode(from); err != nil {
			return nil, fmt.Errorf("journal: row %d: %w", tr.ID, err)
		}
		if tr.To, err = motion.ParseMode(to); err != nil {
			return nil, fmt.Errorf("journal: row %d: %w", tr.ID, err)
		}
		tr.At = motion.Millis(at)
		tr.RecordedAt = time.UnixMilli(recorded)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// CountTo returns how many transitions entered mode m.
func (s *Store) CountTo(ctx context.Context, m motion.Mode) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transitions WHERE to_mode = ?`, m.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("journal: cannot count transitions: %w", err)
	}
	return n, nil
}
