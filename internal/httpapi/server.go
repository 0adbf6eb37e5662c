// Package httpapi exposes a running session over HTTP for dashboards and
// scrapers. Every endpoint is read-only.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"

	"github.com/san-kum/fopdtsim/internal/metrics"
	"github.com/san-kum/fopdtsim/internal/sim"
)

// Source is the read side of a session.
type Source interface {
	Snapshot() *sim.Snapshot
	State() sim.State
	ID() string
}

type Server struct {
	src       Source
	log       *slog.Logger
	accessLog io.Writer
	metrics   http.Handler
	period    time.Duration
	started   time.Time
}

type Option func(*Server)

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithAccessLog writes combined-format access logs to w.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) { s.accessLog = w }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithPeriod sets the scan period used for loop statistics.
func WithPeriod(d time.Duration) Option {
	return func(s *Server) { s.period = d }
}

func New(src Source, opts ...Option) *Server {
	s := &Server{
		src:     src,
		log:     slog.Default(),
		period:  100 * time.Millisecond,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/api/series", s.series).Methods(http.MethodGet)
	r.HandleFunc("/api/summary", s.summary).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", s.resource).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	var h http.Handler = r
	if s.accessLog != nil {
		h = handlers.CombinedLoggingHandler(s.accessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("http listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", "err", err)
	}
}

type errorRsp struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRsp struct {
	Session   string    `json:"session"`
	State     string    `json:"state"`
	ScanCount int       `json:"scan_count"`
	Ticks     int       `json:"ticks"`
	Failures  int       `json:"failures"`
	Samples   int       `json:"samples"`
	LastError string    `json:"last_error"`
	UpdatedAt time.Time `json:"updated_at"`
	CV        *float64  `json:"cv,omitempty"`
	SP        *float64  `json:"sp,omitempty"`
	PV        *float64  `json:"pv,omitempty"`
}

func last(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	v := xs[len(xs)-1]
	return &v
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	snap := s.src.Snapshot()
	s.writeJSON(w, http.StatusOK, statusRsp{
		Session:   s.src.ID(),
		State:     s.src.State().String(),
		ScanCount: snap.ScanCount,
		Ticks:     snap.Ticks,
		Failures:  snap.Failures,
		Samples:   snap.Len(),
		LastError: snap.LastError,
		UpdatedAt: snap.UpdatedAt,
		CV:        last(snap.CV),
		SP:        last(snap.SP),
		PV:        last(snap.PV),
	})
}

type seriesRsp struct {
	From int       `json:"from"`
	Next int       `json:"next"`
	CV   []float64 `json:"cv"`
	SP   []float64 `json:"sp"`
	PV   []float64 `json:"pv"`
}

// series returns samples from index ?from= onward so clients can poll
// incrementally.
func (s *Server) series(w http.ResponseWriter, r *http.Request) {
	from := 0
	if raw := r.URL.Query().Get("from"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorRsp{Error: "from must be a non-negative integer"})
			return
		}
		from = n
	}
	snap := s.src.Snapshot()
	cv, sp, pv := snap.Since(from)
	s.writeJSON(w, http.StatusOK, seriesRsp{
		From: min(from, snap.Len()),
		Next: snap.Len(),
		CV:   cv,
		SP:   sp,
		PV:   pv,
	})
}

func (s *Server) summary(w http.ResponseWriter, _ *http.Request) {
	snap := s.src.Snapshot()
	s.writeJSON(w, http.StatusOK, metrics.Summarize(snap.SP, snap.PV, snap.CV, s.period.Seconds()))
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
	Threads    int32   `json:"threads"`
	Uptime     float64 `json:"uptime_s"`
}

func (s *Server) resource(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorRsp{Error: err.Error()})
		return
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorRsp{Error: err.Error()})
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorRsp{Error: err.Error()})
		return
	}
	threads, _ := proc.NumThreads()

	s.writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: mem.RSS,
		Threads:    threads,
		Uptime:     time.Since(s.started).Seconds(),
	})
}
