package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/san-kum/fopdtsim/internal/automation"
	"github.com/san-kum/fopdtsim/internal/config"
	"github.com/san-kum/fopdtsim/internal/optim"
	"github.com/san-kum/fopdtsim/internal/process"
	"github.com/san-kum/fopdtsim/internal/storage"
	"github.com/san-kum/fopdtsim/internal/tagio"
)

var (
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	trials     int
	trialSeed  uint64
	saveResult bool
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "play a scripted scenario against the emulated controller",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	cmd.Flags().StringVar(&sweepParam, "sweep", "", "sweep this model parameter (gain, time_constant, dead_time, bias)")
	cmd.Flags().Float64Var(&sweepMin, "min", 0, "sweep start")
	cmd.Flags().Float64Var(&sweepMax, "max", 1, "sweep end")
	cmd.Flags().IntVar(&sweepSteps, "steps", 5, "sweep points")
	cmd.Flags().IntVar(&trials, "trials", 0, "repeat with measurement noise this many times")
	cmd.Flags().Uint64Var(&trialSeed, "seed", 1, "first noise seed for trials")
	cmd.Flags().BoolVar(&saveResult, "save", false, "save the run like a live session")
	return cmd
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	switch {
	case sweepParam != "":
		results, err := automation.RunSweep(ctx, sc, automation.Sweep{
			Param:  sweepParam,
			Values: optim.Linspace(sweepMin, sweepMax, sweepSteps),
		}, log)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\tIAE\tISE\tOVERSHOOT\tPV STD\n", sweepParam)
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(w, "%g\terror: %v\n", r.Value, r.Err)
				continue
			}
			fmt.Fprintf(w, "%g\t%.4f\t%.4f\t%.2f%%\t%.4f\n", r.Value, r.Summary.IAE, r.Summary.ISE, 100*r.Summary.Overshoot, r.Summary.PVStd)
		}
		return w.Flush()

	case trials > 0:
		st, err := automation.RunTrials(ctx, sc, trials, trialSeed, log)
		if err != nil {
			return err
		}
		fmt.Printf("%d trials: IAE %.4f ± %.4f, mean PV std %.4f\n", st.Trials, st.IAEMean, st.IAEStd, st.PVStd)
		return nil
	}

	start := time.Now()
	res, err := automation.RunScenario(ctx, sc, log)
	if err != nil {
		return err
	}
	snap := res.Snapshot
	fmt.Printf("scenario %q: %d ticks in %v\n", sc.Name, len(res.Outcomes), time.Since(start).Round(time.Microsecond))
	fmt.Printf("scans: %d  failures: %d\n", snap.ScanCount, res.Failures())
	if snap.LastError != "" {
		fmt.Printf("last error: %s\n", snap.LastError)
	}
	fmt.Printf("iae: %.4f  overshoot: %.2f%%  pv range [%.4f, %.4f]\n",
		res.Summary.IAE, 100*res.Summary.Overshoot, res.Summary.PVMin, res.Summary.PVMax)

	if !saveResult {
		return nil
	}
	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	period := sc.Period
	if period <= 0 {
		period = config.DefaultPeriod
	}
	ctrl := sc.EmulatorConfig()
	dir, err := st.Save(storage.RunMetadata{
		ID:         xid.New().String(),
		Timestamp:  time.Now(),
		Backend:    tagio.KindEmulated,
		Tags:       storage.Tags{SP: ctrl.SPTag, PV: ctrl.PVTag, CV: ctrl.CVTag},
		Period:     period,
		Integrator: config.DefaultIntegrator,
		Seed:       sc.Seed,
		Params:     process.Params{Gain: sc.Gain, TimeConstant: sc.TimeConst, DeadTime: sc.DeadTime, Bias: sc.Bias},
		ScanCount:  snap.ScanCount,
		Ticks:      snap.Ticks,
		Failures:   snap.Failures,
		LastError:  snap.LastError,
	}, storage.Series{CV: snap.CV, SP: snap.SP, PV: snap.PV})
	if err != nil {
		return err
	}
	fmt.Printf("run saved to %s\n", dir)
	return nil
}
