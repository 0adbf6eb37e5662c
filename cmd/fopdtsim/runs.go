package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/fopdtsim/internal/export"
	"github.com/san-kum/fopdtsim/internal/metrics"
	"github.com/san-kum/fopdtsim/internal/storage"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run_id]",
		Short: "plot a saved run and print its loop statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
}

var csvOut string

func newExportCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	cmd.Flags().StringVarP(&csvOut, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newExportJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
}

var svgOut string

func newExportSVGCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export a PV/SP/CV trend chart as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	cmd.Flags().StringVarP(&svgOut, "output", "o", "", "output file (default <run_id>.svg)")
	return cmd
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tBACKEND\tPERIOD\tSCANS\tFAILURES\tGAIN\tTAU\tDEAD")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%g\t%gs\t%gs\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Backend,
			run.Period,
			run.ScanCount,
			run.Failures,
			run.Params.Gain,
			run.Params.TimeConstant,
			run.Params.DeadTime,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, storage.Series, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, storage.Series{}, err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return nil, storage.Series{}, err
	}
	return meta, series, nil
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if series.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("backend: %s @ %s (unit %s)\n", meta.Backend, meta.Address, meta.Unit)
	fmt.Printf("model: gain %g, tau %gs, dead time %gs, bias %g\n",
		meta.Params.Gain, meta.Params.TimeConstant, meta.Params.DeadTime, meta.Params.Bias)
	fmt.Printf("samples: %d  failures: %d\n", series.Len(), meta.Failures)
	if meta.LastError != "" {
		fmt.Printf("last error: %s\n", meta.LastError)
	}
	fmt.Println()

	graph := asciigraph.PlotMany([][]float64{series.PV, series.SP},
		asciigraph.Height(12),
		asciigraph.Width(70),
		asciigraph.SeriesColors(asciigraph.Magenta, asciigraph.Yellow),
		asciigraph.SeriesLegends("PV", "SP"),
		asciigraph.Caption("PV / SP"),
	)
	fmt.Println(graph)
	fmt.Println()
	fmt.Println(asciigraph.Plot(series.CV,
		asciigraph.Height(6),
		asciigraph.Width(70),
		asciigraph.SeriesColors(asciigraph.Cyan),
		asciigraph.Caption("CV"),
	))

	s := metrics.Summarize(series.SP, series.PV, series.CV, meta.Period.Seconds())
	fmt.Println("\nstatistics:")
	fmt.Printf("  iae: %.6f\n", s.IAE)
	fmt.Printf("  ise: %.6f\n", s.ISE)
	fmt.Printf("  itae: %.6f\n", s.ITAE)
	fmt.Printf("  error: mean %.4f std %.4f\n", s.MeanError, s.StdError)
	fmt.Printf("  pv: mean %.4f std %.4f range [%.4f, %.4f]\n", s.PVMean, s.PVStd, s.PVMin, s.PVMax)
	fmt.Printf("  cv travel: %.4f\n", s.CVTravel)
	fmt.Printf("  overshoot: %.2f%%\n", 100*s.Overshoot)

	if len(meta.Metrics) > 0 {
		names := make([]string, 0, len(meta.Metrics))
		for name := range meta.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("\nrecorded metrics:")
		for _, name := range names {
			fmt.Printf("  %s: %.6f\n", name, meta.Metrics[name])
		}
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	out := os.Stdout
	if csvOut != "" {
		f, err := os.Create(csvOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := storage.WriteCSV(out, series, meta.Period); err != nil {
		return err
	}
	if csvOut != "" {
		fmt.Printf("exported %d samples to %s\n", series.Len(), csvOut)
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, series)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	svg := export.TrendSVG([]export.Trace{
		{Name: "PV", Color: "#ff00ff", Values: series.PV},
		{Name: "SP", Color: "#ffff00", Values: series.SP},
		{Name: "CV", Color: "#00ffff", Values: series.CV},
	}, 960, 400)
	if svg == "" {
		return fmt.Errorf("run %s has too few samples to plot", meta.ID)
	}
	out := svgOut
	if out == "" {
		out = meta.ID + ".svg"
	}
	if err := os.WriteFile(out, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}
