package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Archive mirrors the loan and return history of an engine into SQLite for
// reporting. The engine never reads it back; its state stays in memory.
type Archive struct {
	db  *sql.DB
	log zerolog.Logger

	insertLoanStmt   *sql.Stmt
	insertReturnStmt *sql.Stmt

	mu          sync.Mutex
	err         error
	loansSeen   int
	returnsSeen int
	subs        []*Subscription
}

// OpenArchive opens (or creates) the archive database at dbPath, applies
// schema migrations, and prepares the insert statements.
func OpenArchive(dbPath string, log zerolog.Logger) (*Archive, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyArchiveMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	a := &Archive{db: db, log: log}
	if err := a.prepareStatements(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close detaches from the engine, releases prepared statements and closes the DB.
func (a *Archive) Close() error {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}

	if a.insertLoanStmt != nil {
		a.insertLoanStmt.Close()
	}
	if a.insertReturnStmt != nil {
		a.insertReturnStmt.Close()
	}
	return a.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const archiveSchemaVersion = 1

func applyArchiveMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= archiveSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS loan_events (
            id TEXT PRIMARY KEY,
            user_id INTEGER NOT NULL,
            user_name TEXT NOT NULL,
            item_id INTEGER NOT NULL,
            item_title TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            occurred_at DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS return_events (
            id TEXT PRIMARY KEY,
            user_id INTEGER NOT NULL,
            user_name TEXT NOT NULL,
            item_id INTEGER NOT NULL,
            item_title TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            occurred_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loan_events_user ON loan_events(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_return_events_user ON return_events(user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, archiveSchemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

func (a *Archive) prepareStatements() error {
	var err error
	if a.insertLoanStmt, err = a.db.Prepare(`INSERT INTO loan_events(id,user_id,user_name,item_id,item_title,quantity,occurred_at)
        VALUES(?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`); err != nil {
		return err
	}
	if a.insertReturnStmt, err = a.db.Prepare(`INSERT INTO return_events(id,user_id,user_name,item_id,item_title,quantity,occurred_at)
        VALUES(?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mirroring
// ---------------------------------------------------------------------------

// Attach subscribes the archive to both history feeds of e. The current
// history is written before Attach returns.
func (a *Archive) Attach(e *Engine) {
	loans := e.LoanHistory().Subscribe(a.writeLoans)
	returns := e.ReturnHistory().Subscribe(a.writeReturns)
	a.mu.Lock()
	a.subs = append(a.subs, loans, returns)
	a.mu.Unlock()
}

// Err returns the first write failure, if any. Failures never propagate into
// the engine.
func (a *Archive) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Archive) writeLoans(events []LoanEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// A shorter log means the engine was reset.
	if len(events) < a.loansSeen {
		a.loansSeen = 0
	}
	pending := events[a.loansSeen:]
	if len(pending) == 0 {
		return
	}
	err := a.inTx(func(tx *sql.Tx) error {
		stmt := tx.Stmt(a.insertLoanStmt)
		for _, ev := range pending {
			if _, err := stmt.Exec(ev.ID, ev.UserID, ev.UserName, ev.ItemID, ev.ItemTitle, ev.Quantity, ev.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.fail(fmt.Errorf("archive loans: %w", err))
		return
	}
	a.loansSeen = len(events)
}

func (a *Archive) writeReturns(events []ReturnEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(events) < a.returnsSeen {
		a.returnsSeen = 0
	}
	pending := events[a.returnsSeen:]
	if len(pending) == 0 {
		return
	}
	err := a.inTx(func(tx *sql.Tx) error {
		stmt := tx.Stmt(a.insertReturnStmt)
		for _, ev := range pending {
			if _, err := stmt.Exec(ev.ID, ev.UserID, ev.UserName, ev.ItemID, ev.ItemTitle, ev.Quantity, ev.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.fail(fmt.Errorf("archive returns: %w", err))
		return
	}
	a.returnsSeen = len(events)
}

func (a *Archive) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// fail records err. Caller must hold a.mu.
func (a *Archive) fail(err error) {
	if a.err == nil {
		a.err = err
	}
	a.log.Error().Err(err).Msg("archive write failed")
}

// ---------------------------------------------------------------------------
// Reporting
// ---------------------------------------------------------------------------

// LoanEvents returns every archived borrow in occurrence order.
func (a *Archive) LoanEvents() ([]LoanEvent, error) {
	rows, err := a.db.Query(`SELECT id,user_id,user_name,item_id,item_title,quantity,occurred_at FROM loan_events ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []LoanEvent
	for rows.Next() {
		var ev LoanEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.UserName, &ev.ItemID, &ev.ItemTitle, &ev.Quantity, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ReturnEvents returns every archived return in occurrence order.
func (a *Archive) ReturnEvents() ([]ReturnEvent, error) {
	rows, err := a.db.Query(`SELECT id,user_id,user_name,item_id,item_title,quantity,occurred_at FROM return_events ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ReturnEvent
	for rows.Next() {
		var ev ReturnEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.UserName, &ev.ItemID, &ev.ItemTitle, &ev.Quantity, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByUser sums archived borrowed quantities per borrower.
func (a *Archive) CountByUser() (map[int64]int, error) {
	rows, err := a.db.Query(`SELECT user_id, SUM(quantity) FROM loan_events GROUP BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var total int
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, err
		}
		counts[userID] = total
	}
	return counts, rows.Err()
}
