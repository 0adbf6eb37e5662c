// Package recorder persists every tick outcome of a session to SQLite so a
// long run can be examined after the fact.
package recorder

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/san-kum/fopdtsim/internal/sim"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	session     TEXT NOT NULL,
	scan        INTEGER NOT NULL,
	time_ns     INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	appended    INTEGER NOT NULL,
	scan_count  INTEGER NOT NULL,
	cv          REAL,
	sp          REAL,
	pv          REAL,
	integrated  REAL,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS ticks_session_scan ON ticks (session, scan);`

const insertSQL = `INSERT INTO ticks
	(session, scan, time_ns, duration_ns, ok, appended, scan_count, cv, sp, pv, integrated, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Row is one recorded tick.
type Row struct {
	Session    string
	Scan       int
	TimeNS     int64
	Duration   int64
	OK         bool
	Appended   bool
	ScanCount  int
	CV         float64
	SP         float64
	PV         float64
	Integrated float64
	Error      string
}

// Recorder buffers outcomes and writes them from a background goroutine,
// one transaction per batch, so a slow or locked database never stalls the
// tick. It implements sim.Observer and sim.Flusher.
type Recorder struct {
	db         *sql.DB
	batchSize  int
	maxPending int
	interval   time.Duration
	log        *slog.Logger

	mu      sync.Mutex
	session string
	pending []Row
	written int
	dropped int

	// serializes transactions between the writer goroutine and Flush
	writeMu sync.Mutex

	kick chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

type Option func(*Recorder)

// WithInterval sets how often buffered rows are written when no batch
// fills up.
func WithInterval(d time.Duration) Option {
	return func(r *Recorder) { r.interval = d }
}

// WithMaxPending caps the rows held while the database keeps failing;
// the oldest rows beyond it are dropped and counted.
func WithMaxPending(n int) Option {
	return func(r *Recorder) { r.maxPending = n }
}

// Open creates (or appends to) the database at path. An empty path
// creates a uniquely named file in the working directory.
func Open(path string, batchSize int, log *slog.Logger, opts ...Option) (*Recorder, error) {
	if path == "" {
		path = "fopdtsim_ticks_" + xid.New().String() + ".sqlite3"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open recorder %s: %w", path, err)
	}
	return NewWithDB(db, batchSize, log, opts...)
}

func NewWithDB(db *sql.DB, batchSize int, log *slog.Logger, opts ...Option) (*Recorder, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create ticks table: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		db:        db,
		batchSize: batchSize,
		interval:  time.Second,
		log:       log,
		kick:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxPending <= 0 {
		r.maxPending = 64 * batchSize
	}
	go r.run()

	atexit.Register(func() {
		if err := r.Close(); err != nil {
			r.log.Error("close recorder at exit", "err", err)
		}
	})
	return r, nil
}

// BindSession tags subsequent rows with a session id.
func (r *Recorder) BindSession(id string) {
	r.mu.Lock()
	r.session = id
	r.mu.Unlock()
}

func (r *Recorder) OnTick(o sim.Outcome) {
	row := Row{
		Scan:       o.Scan,
		TimeNS:     o.Time.UnixNano(),
		Duration:   int64(o.Duration),
		OK:         o.OK(),
		Appended:   o.Appended,
		ScanCount:  o.ScanCount,
		CV:         o.Sample.CV,
		SP:         o.Sample.SP,
		PV:         o.Sample.PV,
		Integrated: o.Sample.Integrated,
	}
	if o.Err != nil {
		row.Error = o.Err.Error()
	}

	r.mu.Lock()
	row.Session = r.session
	r.pending = append(r.pending, row)
	r.trimLocked()
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
}

func (r *Recorder) trimLocked() {
	if over := len(r.pending) - r.maxPending; over > 0 {
		r.dropped += over
		r.pending = append(r.pending[:0:0], r.pending[over:]...)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-r.kick:
		case <-ticker.C:
		}
		if err := r.Flush(); err != nil {
			r.log.Warn("flush recorder", "err", err)
		}
	}
}

// Flush writes all buffered rows and waits for a write already in
// progress. Rows of a failed transaction go back to the front of the
// buffer for the next attempt.
func (r *Recorder) Flush() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	rows := r.pending
	r.pending = nil
	r.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	err := r.insert(rows)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.pending = append(rows, r.pending...)
		r.trimLocked()
		return err
	}
	r.written += len(rows)
	return nil
}

func (r *Recorder) insert(rows []Row) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.Exec(row.Session, row.Scan, row.TimeNS, row.Duration, row.OK, row.Appended,
			row.ScanCount, row.CV, row.SP, row.PV, row.Integrated, row.Error)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert scan %d: %w", row.Scan, err)
		}
	}
	return tx.Commit()
}

// Counts returns how many rows were written and how many were dropped
// because the buffer overflowed while writes kept failing.
func (r *Recorder) Counts() (written, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.dropped
}

// Pending returns the number of buffered rows not yet written.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Rows returns the recorded ticks of a session in scan order.
func (r *Recorder) Rows(session string) ([]Row, error) {
	q, err := r.db.Query(`SELECT session, scan, time_ns, duration_ns, ok, appended, scan_count,
		cv, sp, pv, integrated, error FROM ticks WHERE session = ? ORDER BY scan`, session)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	var rows []Row
	for q.Next() {
		var row Row
		if err := q.Scan(&row.Session, &row.Scan, &row.TimeNS, &row.Duration, &row.OK, &row.Appended,
			&row.ScanCount, &row.CV, &row.SP, &row.PV, &row.Integrated, &row.Error); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, q.Err()
}

// Sessions lists the distinct session ids in the database.
func (r *Recorder) Sessions() ([]string, error) {
	q, err := r.db.Query(`SELECT DISTINCT session FROM ticks ORDER BY session`)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	var ids []string
	for q.Next() {
		var id string
		if err := q.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, q.Err()
}

// Close stops the writer goroutine, flushes and closes the database.
func (r *Recorder) Close() error {
	var err error
	r.once.Do(func() {
		close(r.quit)
		<-r.done
		if ferr := r.Flush(); ferr != nil {
			err = ferr
		}
		if cerr := r.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
