package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/fopdtsim/internal/config"
	"github.com/san-kum/fopdtsim/internal/optim"
	"github.com/san-kum/fopdtsim/internal/process"
	"github.com/san-kum/fopdtsim/internal/sim"
	"github.com/san-kum/fopdtsim/internal/tagio"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tGAIN\tTAU\tDEAD\tBIAS\tPERIOD")
			for _, name := range config.ListPresets() {
				p := config.Presets[name]
				fmt.Fprintf(w, "%s\t%s\t%ss\t%ss\t%s\t%s\n",
					name, p.Gain, p.TimeConstant, p.DeadTime, p.Bias, p.Period)
			}
			return w.Flush()
		},
	}
}

func newConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "print or write the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if out != "" {
				if err := config.Save(out, cfg); err != nil {
					return err
				}
			} else {
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				if err := enc.Close(); err != nil {
					return err
				}
			}
			if _, err := cfg.Session.Parse(); err != nil {
				fmt.Fprintln(os.Stderr, "warning:", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

var identifyRefine int

func newIdentifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify [run_id]",
		Short: "fit gain, time constant and dead time to a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  identifyRun,
	}
	cmd.Flags().IntVar(&identifyRefine, "refine", 2, "zoom passes around the best grid point")
	return cmd
}

func identifyRun(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if series.Len() < 2 {
		return fmt.Errorf("run %s has too few samples to identify", meta.ID)
	}

	b := optim.DefaultBounds(series.Len())
	b.Refine = identifyRefine
	start := time.Now()
	fit, err := optim.Identify(cmd.Context(), series.CV, series.PV, b)
	if err != nil {
		return err
	}

	sec := meta.Period.Seconds()
	fmt.Printf("identified in %v from %d samples\n", time.Since(start).Round(time.Millisecond), series.Len())
	fmt.Printf("  gain: %.4f (recorded %g)\n", fit.Params.Gain, meta.Params.Gain)
	fmt.Printf("  time constant: %.3fs (recorded %gs)\n", fit.Params.TimeConstant*sec, meta.Params.TimeConstant)
	fmt.Printf("  dead time: %.3fs (recorded %gs)\n", fit.Params.DeadTime*sec, meta.Params.DeadTime)
	fmt.Printf("  bias: %.4f\n", fit.Params.Bias)
	fmt.Printf("  rmse: %.6f\n", fit.RMSE)
	return nil
}

var (
	verifyTicks int
	verifyCV    float64
	verifyTol   float64
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "run the step-response scenario offline and compare with the analytic curve",
		RunE:  verify,
	}
	cmd.Flags().IntVar(&verifyTicks, "ticks", 200, "number of scans")
	cmd.Flags().Float64Var(&verifyCV, "cv", 10, "constant CV held by the emulated controller")
	cmd.Flags().Float64Var(&verifyTol, "tolerance", 0.05, "allowed relative error of the final PV")
	return cmd
}

// verify drives a manual-mode emulator through sim.Loop without the
// scheduler, so the whole run takes milliseconds.
func verify(cmd *cobra.Command, args []string) error {
	p := process.Params{Gain: 1.45, TimeConstant: 623, DeadTime: 101, Bias: 13.5}

	emuCfg := tagio.DefaultEmulatorConfig()
	emuCfg.Manual = true
	emuCfg.InitialCV = verifyCV
	emu := tagio.NewEmulator(emuCfg)

	ctx := cmd.Context()
	if err := emu.Connect(ctx, "127.0.0.1", "0", time.Second); err != nil {
		return err
	}
	defer emu.Close()

	loop := sim.NewLoop(emu, sim.Tags{SP: emuCfg.SPTag, PV: emuCfg.PVTag, CV: emuCfg.CVTag}, p)
	if _, err := loop.Run(ctx, verifyTicks); err != nil {
		return err
	}
	snap := loop.Snapshot()
	if snap.Len() == 0 {
		return fmt.Errorf("no samples recorded: %s", snap.LastError)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCAN\tPV\tANALYTIC\tREL ERR")
	var worst float64
	for k := 0; k < snap.Len(); k++ {
		want := p.Bias + p.Gain*verifyCV*process.Fraction(p, float64(k+1))
		rel := 0.0
		if rise := want - p.Bias; rise != 0 {
			rel = math.Abs(snap.PV[k]-want) / math.Abs(rise)
		}
		if k >= int(p.DeadTime)+1 {
			worst = math.Max(worst, rel)
		}
		if k%20 == 19 || k == snap.Len()-1 {
			fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%.2e\n", k, snap.PV[k], want, rel)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	last := snap.Len() - 1
	got := (snap.PV[last] - p.Bias) / (p.Gain * verifyCV)
	want := process.Fraction(p, float64(last+1))
	fmt.Printf("\nfinal fraction: %.6f (analytic %.6f), worst relative error %.2e\n", got, want, worst)
	if want > 0 && math.Abs(got-want)/want > verifyTol {
		return fmt.Errorf("final PV off by more than %.1f%%", 100*verifyTol)
	}
	fmt.Println("ok")
	return nil
}
