package recorder

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/logging"
	"github.com/san-kum/fopdtsim/internal/sim"
)

func outcome(scan int, err error) sim.Outcome {
	o := sim.Outcome{
		Scan:      scan,
		Time:      time.Unix(0, int64(scan)*int64(100*time.Millisecond)),
		Duration:  time.Millisecond,
		Appended:  err == nil,
		ScanCount: scan,
		Sample:    sim.Sample{CV: 10, SP: 25, PV: float64(scan), Integrated: float64(scan)},
	}
	if err != nil {
		o.Err = &dynamo.TickError{Scan: scan, Wrapped: err}
		o.ScanCount = scan - 1
	}
	return o
}

func TestRecorderBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.sqlite3")
	r, err := Open(path, 3, logging.Discard(), WithInterval(time.Hour))
	require.NoError(t, err)
	defer r.Close()

	r.BindSession("s1")
	for i := 1; i <= 3; i++ {
		r.OnTick(outcome(i, nil))
	}

	// a full batch wakes the writer
	require.Eventually(t, func() bool {
		written, _ := r.Counts()
		return written == 3
	}, 5*time.Second, 10*time.Millisecond)

	r.OnTick(outcome(4, nil))
	require.Equal(t, 1, r.Pending())
	rows, err := r.Rows("s1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, r.Flush())
	rows, err = r.Rows("s1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, 4.0, rows[3].PV)
	require.True(t, rows[0].OK)
}

func TestRecorderTickDoesNotWaitOnLockedDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.sqlite3")
	r, err := Open(path, 2, logging.Discard())
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	other, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer other.Close()
	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN EXCLUSIVE")
	require.NoError(t, err)

	r.BindSession("busy")
	start := time.Now()
	for i := 1; i <= 10; i++ {
		r.OnTick(outcome(i, nil))
	}
	require.Less(t, time.Since(start), 500*time.Millisecond)

	_, err = conn.ExecContext(ctx, "COMMIT")
	require.NoError(t, err)

	require.NoError(t, r.Flush())
	rows, err := r.Rows("busy")
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for i, row := range rows {
		require.Equal(t, i+1, row.Scan)
	}
	written, dropped := r.Counts()
	require.Equal(t, 10, written)
	require.Zero(t, dropped)
}

func TestRecorderErrorsAndSessions(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "ticks.sqlite3"), 100, logging.Discard())
	require.NoError(t, err)
	defer r.Close()

	r.BindSession("a")
	r.OnTick(outcome(1, nil))
	r.OnTick(outcome(2, &dynamo.TagError{Kind: dynamo.TagRead, Tag: "CV", Status: "Offline"}))
	r.BindSession("b")
	r.OnTick(outcome(1, nil))
	require.NoError(t, r.Flush())

	rows, err := r.Rows("a")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.False(t, rows[1].OK)
	require.False(t, rows[1].Appended)
	require.Equal(t, "Offline", rows[1].Error)
	require.Equal(t, 1, rows[1].ScanCount)

	ids, err := r.Sessions()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestRecorderReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.sqlite3")
	r, err := Open(path, 10, logging.Discard())
	require.NoError(t, err)
	r.BindSession("x")
	r.OnTick(outcome(1, nil))
	require.NoError(t, r.Close())

	r, err = Open(path, 10, logging.Discard())
	require.NoError(t, err)
	defer r.Close()
	rows, err := r.Rows("x")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRecorderClosedDB(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "ticks.sqlite3"), 100, logging.Discard(),
		WithInterval(time.Hour), WithMaxPending(5))
	require.NoError(t, err)
	require.NoError(t, r.db.Close())

	r.OnTick(outcome(1, errors.New("boom")))
	require.Error(t, r.Flush())
	// failed rows stay buffered for the next attempt
	require.Equal(t, 1, r.Pending())

	for i := 2; i <= 8; i++ {
		r.OnTick(outcome(i, nil))
	}
	require.Error(t, r.Flush())
	require.Equal(t, 5, r.Pending())
	written, dropped := r.Counts()
	require.Zero(t, written)
	require.Equal(t, 3, dropped)
}
