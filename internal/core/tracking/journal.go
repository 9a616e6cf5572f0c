package tracking

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	maxJournalBytes int64   = 256 << 20 // 256 MiB
	evictPct        float64 = 0.10      // evict oldest 10% of rows
	vacuumInterval          = 10        // incremental vacuum every N evictions
)

// Journal appends engine lifecycle events to a FIFO SQLite database.
// It is an audit trail only; nothing resumes from it.
type Journal struct {
	db           *sql.DB
	mu           sync.Mutex
	cachedSize   int64
	rowCount     int64
	evictCounter int
}

func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 {
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("journal: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	var size int64
	db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	var rowCount int64
	db.QueryRow(`SELECT COUNT(*) FROM order_events`).Scan(&rowCount)

	telemetry.Plainf("journal: opened %s  size=%d  rows=%d", path, size, rowCount)
	return &Journal{db: db, cachedSize: size, rowCount: rowCount}, nil
}

const schema = `CREATE TABLE IF NOT EXISTS order_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	event     TEXT NOT NULL,
	pair      TEXT NOT NULL,
	txid      TEXT NOT NULL DEFAULT '',
	price     TEXT NOT NULL DEFAULT '',
	volume    TEXT NOT NULL DEFAULT '',
	detail    TEXT NOT NULL DEFAULT '',
	at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS order_events_run ON order_events(run_id)`

// Attach subscribes the journal to every lifecycle event on bus.
func (j *Journal) Attach(bus *events.Bus) {
	bus.SubscribeAll(j.Record, events.LifecycleTypes...)
}

// Record stores one lifecycle event.
func (j *Journal) Record(e events.Event) error {
	row := entryFromEvent(e)

	detail, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.Exec(
		`INSERT INTO order_events (run_id, event, pair, txid, price, volume, detail, at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		e.RunID, string(e.Type), e.Pair, row.TxID, row.Price, row.Volume, string(detail),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert %s event: %w", e.Type, err)
	}

	j.rowCount++
	j.refreshSize()
	if j.cachedSize > maxJournalBytes {
		j.evict()
	}
	return nil
}

// Entry is one stored event.
type Entry struct {
	ID     int64
	RunID  string
	Event  events.EventType
	Pair   string
	TxID   string
	Price  string
	Volume string
	Detail string
	At     time.Time
}

func entryFromEvent(e events.Event) Entry {
	var row Entry
	switch p := e.Payload.(type) {
	case events.OrderPlaced:
		row.TxID, row.Price, row.Volume = p.TxID, p.Price.String(), p.Volume.String()
	case events.OrderHeld:
		row.TxID, row.Price, row.Volume = p.TxID, p.Price.String(), p.Remaining.String()
	case events.OrderRepriced:
		row.TxID, row.Price, row.Volume = p.CanceledTxID, p.NewPrice.String(), p.Remaining.String()
	case events.CancelRace:
		row.TxID = p.TxID
	case events.OrderDone:
		row.TxID, row.Volume = p.TxID, p.VolumeExecuted.String()
	}
	return row
}

// RunSummary aggregates one engine run.
type RunSummary struct {
	RunID     string
	Pair      string
	Events    int
	Started   time.Time
	LastEvent events.EventType
	LastAt    time.Time
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(limit int) ([]RunSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT e.run_id, e.pair, agg.n, agg.first_at, e.event, e.at
		 FROM order_events e
		 JOIN (SELECT run_id, COUNT(*) AS n, MIN(at) AS first_at, MAX(id) AS last_id
		       FROM order_events GROUP BY run_id) agg ON e.id = agg.last_id
		 ORDER BY e.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var first, last, ev string
		if err := rows.Scan(&r.RunID, &r.Pair, &r.Events, &first, &ev, &last); err != nil {
			return nil, err
		}
		r.LastEvent = events.EventType(ev)
		r.Started, _ = time.Parse(time.RFC3339Nano, first)
		r.LastAt, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events returns every stored event of one run in insertion order.
func (j *Journal) Events(runID string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, run_id, event, pair, txid, price, volume, detail, at
		 FROM order_events WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ev, at string
		if err := rows.Scan(&e.ID, &e.RunID, &ev, &e.Pair, &e.TxID, &e.Price, &e.Volume, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.Event = events.EventType(ev)
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// refreshSize re-reads the database file size from SQLite pragmas.
// Must be called with j.mu held.
func (j *Journal) refreshSize() {
	var size int64
	row := j.db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`)
	if err := row.Scan(&size); err == nil {
		j.cachedSize = size
	}
}

// evict deletes the oldest 10% of rows by count.
// Must be called with j.mu held.
func (j *Journal) evict() {
	toDelete := int64(float64(j.rowCount) * evictPct)
	if toDelete < 1 {
		toDelete = 1
	}

	res, err := j.db.Exec(
		`DELETE FROM order_events WHERE id IN (
			SELECT id FROM order_events ORDER BY id ASC LIMIT ?
		)`, toDelete,
	)
	if err != nil {
		telemetry.Warnf("journal evict: %v", err)
		return
	}

	deleted, _ := res.RowsAffected()
	j.rowCount -= deleted
	j.evictCounter++

	telemetry.Infof("journal: evicted %d rows (target %d)", deleted, toDelete)

	if j.evictCounter%vacuumInterval == 0 {
		j.db.Exec(`PRAGMA incremental_vacuum`)
	}

	j.refreshSize()
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
