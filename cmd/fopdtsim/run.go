package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/fopdtsim/internal/config"
	"github.com/san-kum/fopdtsim/internal/httpapi"
	"github.com/san-kum/fopdtsim/internal/metrics"
	"github.com/san-kum/fopdtsim/internal/recorder"
	"github.com/san-kum/fopdtsim/internal/sim"
	"github.com/san-kum/fopdtsim/internal/storage"
	"github.com/san-kum/fopdtsim/internal/tagio"
	"github.com/san-kum/fopdtsim/internal/telemetry"
	"github.com/san-kum/fopdtsim/internal/viz"
)

type runOptions struct {
	session   sessionFlags
	duration  time.Duration
	live      bool
	httpAddr  string
	record    bool
	telemetry bool
	band      float64
	noSave    bool
}

func (o *runOptions) register(cmd *cobra.Command) {
	o.session.register(cmd)
	fs := cmd.Flags()
	fs.DurationVar(&o.duration, "time", 0, "stop after this long (0 runs until interrupted)")
	fs.StringVar(&o.httpAddr, "http", "", "serve the HTTP API on this address")
	fs.BoolVar(&o.record, "record", false, "record every tick to SQLite")
	fs.BoolVar(&o.telemetry, "telemetry", false, "stream ticks to Kafka")
	fs.Float64Var(&o.band, "band", 1.0, "half-width of the in-band PV statistic")
	fs.BoolVar(&o.noSave, "no-save", false, "do not save the run on stop")
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation session against a controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, o)
		},
	}
	o.register(cmd)
	return cmd
}

func newLiveCmd() *cobra.Command {
	o := &runOptions{live: true}
	cmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation session with a live trend view",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, o)
		},
	}
	o.register(cmd)
	return cmd
}

func runSession(cmd *cobra.Command, o *runOptions) error {
	cfg, err := loadConfig(cmd, &o.session)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTP.Enabled, cfg.HTTP.Addr = true, o.httpAddr
	}
	if o.record {
		cfg.Recorder.Enabled = true
	}
	if o.telemetry {
		cfg.Telemetry.Enabled = true
	}
	if o.live && cfg.Log.File == "" {
		// the trend view owns the terminal
		cfg.Log.File = filepath.Join(cfg.DataDir, "fopdtsim.log")
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return err
		}
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	parsed, err := cfg.Session.Parse()
	if err != nil {
		return err
	}
	cfg.Emulator.Period = parsed.Period.Seconds()

	exporter := metrics.NewExporter()
	stats := metrics.Default(parsed.Period.Seconds(), o.band)
	opener := tagio.OpenerFor(cfg.Backend, tagio.Options{Emulator: cfg.Emulator, MQTT: cfg.MQTT})
	sess := sim.NewSession(opener, sim.WithLogger(log), sim.WithOnFire(exporter.Fire))
	sess.Subscribe(stats)
	sess.Subscribe(exporter)

	if cfg.Recorder.Enabled {
		path := cfg.Recorder.Path
		if path != "" && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.DataDir, path)
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return err
		}
		rec, err := recorder.Open(path, cfg.Recorder.BatchSize, log)
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		defer rec.Close()
		sess.Subscribe(rec)
	}

	if cfg.Telemetry.Enabled {
		tcfg := telemetry.Config{Brokers: cfg.Telemetry.Brokers, Topic: cfg.Telemetry.Topic}
		pub := telemetry.NewPublisher(telemetry.NewWriter(tcfg), tcfg, log)
		defer pub.Close()
		sess.Subscribe(pub)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sess.Start(ctx, cfg.Session); err != nil {
		return err
	}

	if cfg.HTTP.Enabled {
		srv := httpapi.New(sess,
			httpapi.WithLogger(log),
			httpapi.WithMetrics(exporter.Handler()),
			httpapi.WithPeriod(parsed.Period),
		)
		go func() {
			if err := srv.Serve(ctx, cfg.HTTP.Addr); err != nil {
				log.Error("http server", "err", err)
			}
		}()
	}

	runCtx := ctx
	if o.duration > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(ctx, o.duration)
		defer stop()
	}

	if o.live {
		err = viz.Run(runCtx, sess, parsed.Period)
	} else {
		fmt.Printf("session %s running; press Ctrl+C to stop\n", sess.ID())
		<-runCtx.Done()
	}
	cancel()

	stopErr := sess.Stop()
	if stopErr != nil {
		log.Warn("stop", "err", stopErr)
	}

	if !o.noSave {
		if dir, err := saveRun(cfg, sess, stats); err != nil {
			log.Error("save run", "err", err)
		} else {
			fmt.Printf("run saved to %s\n", dir)
		}
	}
	printRunSummary(sess, stats)
	return errors.Join(err, stopErr)
}

func saveRun(cfg *config.Config, sess *sim.Session, stats *metrics.Set) (string, error) {
	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	p := sess.Parsed()
	snap := sess.Snapshot()
	meta := storage.RunMetadata{
		ID:         sess.ID(),
		Timestamp:  time.Now(),
		Backend:    cfg.Backend,
		Address:    p.Address,
		Unit:       p.Unit,
		Tags:       storage.Tags{SP: p.SPTag, PV: p.PVTag, CV: p.CVTag},
		Period:     p.Period,
		Integrator: integratorName(cfg.Session.Integrator),
		Seed:       p.Seed,
		Params:     p.Seconds,
		ScanCount:  snap.ScanCount,
		Ticks:      snap.Ticks,
		Failures:   snap.Failures,
		LastError:  snap.LastError,
		Metrics:    stats.Values(),
	}
	return st.Save(meta, storage.Series{CV: snap.CV, SP: snap.SP, PV: snap.PV})
}

func integratorName(name string) string {
	if name == "" {
		return config.DefaultIntegrator
	}
	return name
}

func printRunSummary(sess *sim.Session, stats *metrics.Set) {
	snap := sess.Snapshot()
	sched := sess.SchedulerStats()
	fmt.Printf("session: %s\n", sess.ID())
	fmt.Printf("scans: %d  ticks: %d  failures: %d  skipped: %d\n",
		snap.ScanCount, snap.Ticks, snap.Failures, sched.Skipped)
	if snap.LastError != "" {
		fmt.Printf("last error: %s\n", snap.LastError)
	}
	values := stats.Values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, values[name])
	}
}

