package tte

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ricp/internal/logging"
)

// LineageStore persists the ordered list of promoted run ids. Append-only:
// entries are never rewritten or removed.
type LineageStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// OpenLineageStore creates or opens the lineage store, replacing a corrupt
// file with a fresh one.
func OpenLineageStore(dataDir string) (*LineageStore, error) {
	dbPath := filepath.Join(dataDir, "lineage.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s, err := openLineageAt(dbPath)
	if err == nil {
		return s, nil
	}
	logging.Get(logging.CategoryStore).Warnw("lineage store unreadable, starting fresh",
		"path", dbPath, "error", err)
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to replace corrupt lineage store: %w", rmErr)
		}
	}
	return openLineageAt(dbPath)
}

func openLineageAt(dbPath string) (*LineageStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open lineage store: %w", err)
	}
	s := &LineageStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize lineage schema: %w", err)
	}
	if _, err := s.LoadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *LineageStore) Close() error {
	return s.db.Close()
}

func (s *LineageStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS canonical_lineage (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		promoted_at DATETIME NOT NULL
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Append records a promoted run id at the end of the lineage.
func (s *LineageStore) Append(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO canonical_lineage (run_id, promoted_at) VALUES (?, ?)`,
		runID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append to lineage: %w", err)
	}
	return nil
}

// LoadAll returns the promoted run ids in promotion order.
func (s *LineageStore) LoadAll() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT run_id FROM canonical_lineage ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("failed to scan lineage entry: %w", err)
		}
		out = append(out, runID)
	}
	return out, rows.Err()
}
