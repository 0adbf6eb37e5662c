// Package telemetry streams tick outcomes to Kafka as JSON records keyed by
// session id.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/san-kum/fopdtsim/internal/sim"
)

// Record is the JSON body of one message.
type Record struct {
	Session    string  `json:"session"`
	Scan       int     `json:"scan"`
	ScanCount  int     `json:"scanCount"`
	Timestamp  int64   `json:"timestamp"`
	CV         float64 `json:"cv"`
	SP         float64 `json:"sp"`
	PV         float64 `json:"pv"`
	Integrated float64 `json:"integrated"`
	OK         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers  []string
	Topic    string
	Batch    int
	Interval time.Duration
	Timeout  time.Duration
}

// NewWriter builds a kafka writer for cfg.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Publisher is a sim.Observer that ships outcomes from a background
// goroutine so the tick never waits on the broker.
type Publisher struct {
	w        MessageWriter
	log      *slog.Logger
	batch    int
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	session string
	pending []kafka.Message
	sent    int
	failed  int

	kick chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewPublisher(w MessageWriter, cfg Config, log *slog.Logger) *Publisher {
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		w:        w,
		log:      log,
		batch:    cfg.Batch,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		kick:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) BindSession(id string) {
	p.mu.Lock()
	p.session = id
	p.mu.Unlock()
}

func (p *Publisher) OnTick(o sim.Outcome) {
	p.mu.Lock()
	rec := Record{
		Session:    p.session,
		Scan:       o.Scan,
		ScanCount:  o.ScanCount,
		Timestamp:  o.Time.UnixMilli(),
		CV:         o.Sample.CV,
		SP:         o.Sample.SP,
		PV:         o.Sample.PV,
		Integrated: o.Sample.Integrated,
		OK:         o.OK(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		p.mu.Unlock()
		p.log.Warn("marshal telemetry", "scan", o.Scan, "err", err)
		return
	}
	p.pending = append(p.pending, kafka.Message{
		Key:   []byte(rec.Session),
		Value: body,
		Headers: []kafka.Header{
			{Key: "scan", Value: []byte(strconv.Itoa(o.Scan))},
		},
	})
	full := len(p.pending) >= p.batch
	p.mu.Unlock()

	if full {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-p.kick:
		case <-ticker.C:
		}
		if err := p.Flush(); err != nil {
			p.log.Warn("publish telemetry", "err", err)
		}
	}
}

// Flush sends everything buffered so far. Messages from a failed write are
// dropped and counted.
func (p *Publisher) Flush() error {
	p.mu.Lock()
	msgs := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(msgs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err := p.w.WriteMessages(ctx, msgs...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failed += len(msgs)
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	p.sent += len(msgs)
	return nil
}

// Counts returns how many messages were delivered and dropped.
func (p *Publisher) Counts() (sent, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.failed
}

// Close stops the background sender, flushes and closes the writer.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.quit)
		<-p.done
		if ferr := p.Flush(); ferr != nil {
			err = ferr
		}
		if cerr := p.w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
