package mortality

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ricp/internal/logging"
	"ricp/internal/shape"
)

// Store persists mortality records in a sqlite database. Reads load the full
// record set; writes replace it inside one transaction, so a reader always
// sees either the prior complete state or the newest complete state.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// OpenStore creates or opens the mortality store. A store that exists but
// cannot be opened or read is replaced with a fresh one: history is lost,
// corruption is not propagated.
func OpenStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "mortality.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s, err := openAt(dbPath)
	if err == nil {
		return s, nil
	}

	logging.Get(logging.CategoryStore).Warnw("mortality store unreadable, starting fresh",
		"path", dbPath, "error", err)
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to replace corrupt mortality store: %w", rmErr)
		}
	}
	return openAt(dbPath)
}

func openAt(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open mortality store: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mortality schema: %w", err)
	}
	// A corrupt file can open successfully and fail on first read.
	if _, err := s.LoadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mortality_records (
		shape_id TEXT PRIMARY KEY,
		runs INTEGER NOT NULL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		handoffs_json TEXT NOT NULL,
		history_json TEXT NOT NULL,
		overall_rate REAL NOT NULL,
		classification TEXT NOT NULL,
		trend TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mortality_rate ON mortality_records(overall_rate);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadAll reads every record.
func (s *Store) LoadAll() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT shape_id, runs, first_seen, last_seen,
		handoffs_json, history_json, overall_rate, classification, trend
		FROM mortality_records`)
	if err != nil {
		return nil, fmt.Errorf("failed to load mortality records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r                         Record
			firstSeen, lastSeen       time.Time
			handoffsJSON, historyJSON string
			classification, trend     string
		)
		if err := rows.Scan(&r.ShapeID, &r.Runs, &firstSeen, &lastSeen,
			&handoffsJSON, &historyJSON, &r.OverallRate, &classification, &trend); err != nil {
			return nil, fmt.Errorf("failed to scan mortality record: %w", err)
		}
		r.FirstSeen = firstSeen
		r.LastSeen = lastSeen
		r.Classification = Status(classification)
		r.Trend = Trend(trend)
		if err := json.Unmarshal([]byte(handoffsJSON), &r.Handoffs); err != nil {
			return nil, fmt.Errorf("failed to decode handoff stats for %s: %w", r.ShapeID, err)
		}
		if r.Handoffs == nil {
			r.Handoffs = make(map[shape.Handoff]*HandoffStats)
		}
		if err := json.Unmarshal([]byte(historyJSON), &r.History); err != nil {
			return nil, fmt.Errorf("failed to decode history for %s: %w", r.ShapeID, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SaveAll replaces the full record set in one transaction.
func (s *Store) SaveAll(recs []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin mortality save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mortality_records`); err != nil {
		return fmt.Errorf("failed to clear mortality records: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO mortality_records
		(shape_id, runs, first_seen, last_seen, handoffs_json, history_json,
		 overall_rate, classification, trend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare mortality insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		handoffsJSON, err := json.Marshal(r.Handoffs)
		if err != nil {
			return fmt.Errorf("failed to encode handoff stats for %s: %w", r.ShapeID, err)
		}
		historyJSON, err := json.Marshal(r.History)
		if err != nil {
			return fmt.Errorf("failed to encode history for %s: %w", r.ShapeID, err)
		}
		if _, err := stmt.Exec(r.ShapeID, r.Runs, r.FirstSeen, r.LastSeen,
			string(handoffsJSON), string(historyJSON),
			r.OverallRate, string(r.Classification), string(r.Trend)); err != nil {
			return fmt.Errorf("failed to save mortality record %s: %w", r.ShapeID, err)
		}
	}
	return tx.Commit()
}

// Reset deletes every record.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM mortality_records`)
	return err
}
