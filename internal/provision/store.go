package provision

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists provisioning runs, their logs, and the undo journal to
// SQLite. The journal is what makes a failed run reversible: every
// host-side mutation records its inverse action before the next step runs.
type Store struct {
	db *sql.DB
}

// Run states.
const (
	StateRunning        = "running"
	StateCompleted      = "completed"
	StateFailed         = "failed"
	StateRolledBack     = "rolled-back"
	StateRollbackFailed = "rollback-failed"
)

// Run is one provisioning attempt against a container.
type Run struct {
	ID          string
	CTID        int
	State       string
	Step        string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// LogEntry is one line of run output.
type LogEntry struct {
	ID        int
	RunID     string
	Timestamp time.Time
	Level     string
	Message   string
}

// JournalEntry is one recorded inverse action.
type JournalEntry struct {
	ID      int
	RunID   string
	Seq     int
	Kind    string
	Payload string
	Undone  bool
}

// NewStore opens (or creates) the SQLite database at the given path.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Set pragmas via DSN so EVERY connection in the pool gets them.
	// database/sql pools connections — a PRAGMA run via db.Exec only
	// applies to one connection, leaving others without busy_timeout.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite supports only one writer at a time. Limit the pool so
	// callers queue at the Go level instead of fighting over the lock.
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			ctid         INTEGER NOT NULL,
			state        TEXT NOT NULL,
			step         TEXT NOT NULL DEFAULT '',
			error        TEXT NOT NULL DEFAULT '',
			started_at   TEXT NOT NULL,
			completed_at TEXT DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS run_logs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			level     TEXT NOT NULL,
			message   TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id);

		CREATE TABLE IF NOT EXISTS journal (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT NOT NULL,
			seq     INTEGER NOT NULL,
			kind    TEXT NOT NULL,
			payload TEXT NOT NULL,
			undone  INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_journal_run_id ON journal(run_id);
	`)
	return err
}

// CreateRun inserts a new run.
func (s *Store) CreateRun(run *Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, ctid, state, step, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CTID, run.State, run.Step, run.Error,
		run.StartedAt.Format(time.RFC3339),
	)
	return err
}

// UpdateRun updates a run's mutable fields.
func (s *Store) UpdateRun(run *Run) error {
	completedAt := ""
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		UPDATE runs SET state=?, step=?, error=?, completed_at=? WHERE id=?`,
		run.State, run.Step, run.Error, completedAt, run.ID,
	)
	return err
}

// LatestRun returns the most recent run for a container, or nil.
func (s *Store) LatestRun(ctid int) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, ctid, state, step, error, started_at, completed_at
		FROM runs WHERE ctid=? ORDER BY started_at DESC, id DESC LIMIT 1`, ctid)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns all runs, most recent first.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, ctid, state, step, error, started_at, completed_at
		FROM runs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var run Run
	var startedAt, completedAt string
	if err := row.Scan(&run.ID, &run.CTID, &run.State, &run.Step, &run.Error, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if completedAt != "" {
		t, err := time.Parse(time.RFC3339, completedAt)
		if err == nil {
			run.CompletedAt = &t
		}
	}
	return &run, nil
}

// AppendLog records one log line for a run.
func (s *Store) AppendLog(entry *LogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message)
		VALUES (?, ?, ?, ?)`,
		entry.RunID, entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message,
	)
	return err
}

// GetLogs returns all log lines for a run in insertion order.
func (s *Store) GetLogs(runID string) ([]*LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message
		FROM run_logs WHERE run_id=? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &e.Level, &e.Message); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// AppendJournal records one inverse action for a run.
func (s *Store) AppendJournal(runID string, seq int, kind, payload string) error {
	_, err := s.db.Exec(`
		INSERT INTO journal (run_id, seq, kind, payload)
		VALUES (?, ?, ?, ?)`,
		runID, seq, kind, payload,
	)
	return err
}

// GetJournal returns a run's journal entries in recording order.
func (s *Store) GetJournal(runID string) ([]*JournalEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, seq, kind, payload, undone
		FROM journal WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		var e JournalEntry
		var undone int
		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.Kind, &e.Payload, &undone); err != nil {
			return nil, err
		}
		e.Undone = undone != 0
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// MarkUndone flags a journal entry as executed.
func (s *Store) MarkUndone(id int) error {
	_, err := s.db.Exec(`UPDATE journal SET undone=1 WHERE id=?`, id)
	return err
}
