package fingerprint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"ricp/internal/logging"
	"ricp/internal/shape"
)

// IndexStore persists the fingerprint index. Full load at open, full rewrite
// on save, one transaction per save.
type IndexStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// OpenIndexStore creates or opens the fingerprint index store, replacing a
// corrupt file with a fresh one. Losing history only weakens the firewall to
// its conservative no-history default; it never blocks on a fresh index.
func OpenIndexStore(dataDir string) (*IndexStore, error) {
	dbPath := filepath.Join(dataDir, "fingerprints.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s, err := openIndexAt(dbPath)
	if err == nil {
		return s, nil
	}
	logging.Get(logging.CategoryStore).Warnw("fingerprint index unreadable, starting fresh",
		"path", dbPath, "error", err)
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to replace corrupt fingerprint index: %w", rmErr)
		}
	}
	return openIndexAt(dbPath)
}

func openIndexAt(dbPath string) (*IndexStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open fingerprint index: %w", err)
	}
	s := &IndexStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize fingerprint schema: %w", err)
	}
	if _, err := s.LoadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *IndexStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *IndexStore) Path() string {
	return s.dbPath
}

func (s *IndexStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fingerprint_index (
		hash TEXT PRIMARY KEY,
		handoff TEXT NOT NULL,
		loss_occurrences INTEGER NOT NULL,
		invariant_occurrences INTEGER NOT NULL,
		verdict TEXT NOT NULL,
		occurrences_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fingerprint_verdict ON fingerprint_index(verdict);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadAll reads the full index.
func (s *IndexStore) LoadAll() ([]*IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT hash, handoff, loss_occurrences,
		invariant_occurrences, verdict, occurrences_json FROM fingerprint_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint index: %w", err)
	}
	defer rows.Close()

	var out []*IndexEntry
	for rows.Next() {
		var (
			e               IndexEntry
			handoff         string
			verdict         string
			occurrencesJSON string
		)
		if err := rows.Scan(&e.Hash, &handoff, &e.LossOccurrences,
			&e.InvariantOccurrences, &verdict, &occurrencesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint entry: %w", err)
		}
		e.Handoff = shape.Handoff(handoff)
		e.Verdict = Verdict(verdict)
		if err := json.Unmarshal([]byte(occurrencesJSON), &e.Occurrences); err != nil {
			return nil, fmt.Errorf("failed to decode occurrences for %s: %w", e.Hash, err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SaveAll replaces the full index in one transaction.
func (s *IndexStore) SaveAll(entries []*IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin fingerprint save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fingerprint_index`); err != nil {
		return fmt.Errorf("failed to clear fingerprint index: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO fingerprint_index
		(hash, handoff, loss_occurrences, invariant_occurrences, verdict, occurrences_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fingerprint insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		occurrencesJSON, err := json.Marshal(e.Occurrences)
		if err != nil {
			return fmt.Errorf("failed to encode occurrences for %s: %w", e.Hash, err)
		}
		if _, err := stmt.Exec(e.Hash, string(e.Handoff), e.LossOccurrences,
			e.InvariantOccurrences, string(e.Verdict), string(occurrencesJSON)); err != nil {
			return fmt.Errorf("failed to save fingerprint entry %s: %w", e.Hash, err)
		}
	}
	return tx.Commit()
}
