package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"gamesmith/internal/logging"
	"gamesmith/internal/session"
)

// SQLiteStore is the default SessionStore, backed by a single-file SQLite
// database. Plan, assets, history, and the error report are JSON columns;
// the three fragments get their own columns so the common write path never
// re-encodes code blobs it did not touch semantically.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Opening session store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Session store schema ready")
	return s, nil
}

// initialize creates the required tables.
func (s *SQLiteStore) initialize() error {
	sessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		plan TEXT,
		structure TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL DEFAULT '',
		behavior TEXT NOT NULL DEFAULT '',
		assets TEXT NOT NULL DEFAULT '[]',
		history TEXT NOT NULL DEFAULT '[]',
		error_report TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`

	for _, stmt := range []string{sessionsTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Insert writes a new session row.
func (s *SQLiteStore) Insert(sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, assets, history, report, err := encodeColumns(sess)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, plan, structure, style, behavior, assets, history, error_report, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, plan,
		sess.Fragments.Structure, sess.Fragments.Style, sess.Fragments.Behavior,
		assets, history, report,
		string(sess.Status), sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to insert session %s: %v", sess.ID, err)
		return fmt.Errorf("failed to insert session: %w", err)
	}
	logging.StoreDebug("Inserted session %s (status=%s)", sess.ID, sess.Status)
	return nil
}

// Get loads a session or returns ErrNotFound.
func (s *SQLiteStore) Get(id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, plan, structure, style, behavior, assets, history, error_report, status, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var (
		sess    session.Session
		plan    sql.NullString
		assets  string
		history string
		report  sql.NullString
		status  string
	)
	err := row.Scan(&sess.ID, &plan,
		&sess.Fragments.Structure, &sess.Fragments.Style, &sess.Fragments.Behavior,
		&assets, &history, &report, &status, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to load session %s: %v", id, err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.Status = session.Status(status)
	if plan.Valid && plan.String != "" {
		var p session.Plan
		if err := json.Unmarshal([]byte(plan.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode plan for session %s: %w", id, err)
		}
		sess.Plan = &p
	}
	if err := json.Unmarshal([]byte(assets), &sess.Assets); err != nil {
		return nil, fmt.Errorf("failed to decode assets for session %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
		return nil, fmt.Errorf("failed to decode history for session %s: %w", id, err)
	}
	if report.Valid && report.String != "" {
		var r session.ErrorReport
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("failed to decode error report for session %s: %w", id, err)
		}
		sess.ErrorReport = &r
	}
	return &sess, nil
}

// Update replaces the full session row in a single statement. Callers hand
// in the finished session; partial writes are not possible at this layer.
func (s *SQLiteStore) Update(sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "Update")
	defer timer.StopWithThreshold(100 * time.Millisecond)

	plan, assets, history, report, err := encodeColumns(sess)
	if err != nil {
		return err
	}

	sess.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE sessions
		SET plan = ?, structure = ?, style = ?, behavior = ?, assets = ?, history = ?, error_report = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		plan,
		sess.Fragments.Structure, sess.Fragments.Style, sess.Fragments.Behavior,
		assets, history, report,
		string(sess.Status), sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to update session %s: %v", sess.ID, err)
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	logging.StoreDebug("Updated session %s (status=%s)", sess.ID, sess.Status)
	return nil
}

// SetErrorReport records or clears the pending error report without touching
// the rest of the row. The preview relay calls this from outside any cycle.
func (s *SQLiteStore) SetErrorReport(id string, report *session.ErrorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var encoded interface{}
	if report != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to encode error report: %w", err)
		}
		encoded = string(data)
	}

	res, err := s.db.Exec(`UPDATE sessions SET error_report = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC(), id)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to set error report for session %s: %v", id, err)
		return fmt.Errorf("failed to set error report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns summaries of all sessions, most recently updated first.
func (s *SQLiteStore) List() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, plan, status, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum  Summary
			plan sql.NullString
		)
		var status string
		if err := rows.Scan(&sum.ID, &plan, &status, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.Status = session.Status(status)
		if plan.Valid && plan.String != "" {
			var p session.Plan
			if err := json.Unmarshal([]byte(plan.String), &p); err == nil {
				sum.Title = p.Title
			}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	logging.StoreDebug("Closing session store at %s", s.dbPath)
	return s.db.Close()
}

func encodeColumns(sess *session.Session) (plan interface{}, assets, history string, report interface{}, err error) {
	if sess.Plan != nil {
		data, merr := json.Marshal(sess.Plan)
		if merr != nil {
			return nil, "", "", nil, fmt.Errorf("failed to encode plan: %w", merr)
		}
		plan = string(data)
	}

	assetData, err := json.Marshal(emptySliceIfNil(sess.Assets))
	if err != nil {
		return nil, "", "", nil, fmt.Errorf("failed to encode assets: %w", err)
	}
	historyData, err := json.Marshal(emptyTurnsIfNil(sess.History))
	if err != nil {
		return nil, "", "", nil, fmt.Errorf("failed to encode history: %w", err)
	}

	if sess.ErrorReport != nil {
		data, merr := json.Marshal(sess.ErrorReport)
		if merr != nil {
			return nil, "", "", nil, fmt.Errorf("failed to encode error report: %w", merr)
		}
		report = string(data)
	}
	return plan, string(assetData), string(historyData), report, nil
}

func emptySliceIfNil(assets []session.Asset) []session.Asset {
	if assets == nil {
		return []session.Asset{}
	}
	return assets
}

func emptyTurnsIfNil(turns []session.Turn) []session.Turn {
	if turns == nil {
		return []session.Turn{}
	}
	return turns
}
