package viz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/fopdtsim/internal/metrics"
	"github.com/san-kum/fopdtsim/internal/sim"
)

const (
	plotWidth   = 70
	plotHeight  = 16
	minWindow   = 20
	maxWindow   = 2000
	startWindow = 300
)

// Source is the read side of a session.
type Source interface {
	Snapshot() *sim.Snapshot
	State() sim.State
	ID() string
}

type TickMsg time.Time

// Model is the Bubble Tea model for the trend view.
type Model struct {
	src      Source
	period   time.Duration
	snap     *sim.Snapshot
	window   int
	frozen   bool
	showHelp bool
}

func NewModel(src Source, period time.Duration) Model {
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	return Model{
		src:    src,
		period: period,
		snap:   src.Snapshot(),
		window: startWindow,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.period, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.frozen = !m.frozen
		case "t":
			SetTheme(nextTheme())
		case "+", "=":
			m.window = min(maxWindow, m.window*2)
		case "-", "_":
			m.window = max(minWindow, m.window/2)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if !m.frozen {
			m.snap = m.src.Snapshot()
		}
		return m, m.tick()
	}
	return m, nil
}

// visible returns the trailing window of each series.
func (m Model) visible() (cv, sp, pv []float64) {
	from := max(0, m.snap.Len()-m.window)
	return m.snap.Since(from)
}

func (m Model) plot(cv, sp, pv []float64) string {
	if len(pv) < 2 {
		return subtle.Render("waiting for samples...")
	}
	return asciigraph.PlotMany([][]float64{pv, sp, cv},
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.SeriesColors(CurrentTheme.PV, CurrentTheme.SP, CurrentTheme.CV),
		asciigraph.SeriesLegends("PV", "SP", "CV"),
		asciigraph.Caption(fmt.Sprintf("last %d samples", len(pv))),
	)
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func (m Model) stats(cv, sp, pv []float64) string {
	var b strings.Builder
	running := m.src.State() == sim.Running
	state := m.src.State().String()
	if m.frozen {
		state += " (frozen)"
	}
	b.WriteString(headerStyle().Render("SESSION " + m.src.ID()))
	b.WriteString("\n")
	b.WriteString(row("state", stateStyle(running).Render(state)))
	b.WriteString(row("scans", fmt.Sprintf("%d", m.snap.ScanCount)))
	b.WriteString(row("ticks", fmt.Sprintf("%d", m.snap.Ticks)))
	b.WriteString(row("failures", fmt.Sprintf("%d", m.snap.Failures)))
	if n := len(pv); n > 0 {
		b.WriteString(row("PV", fmt.Sprintf("%.3f", pv[n-1])))
		b.WriteString(row("SP", fmt.Sprintf("%.3f", sp[n-1])))
		b.WriteString(row("CV", fmt.Sprintf("%.3f", cv[n-1])))
	}

	s := metrics.Summarize(sp, pv, cv, m.period.Seconds())
	b.WriteString("\n")
	b.WriteString(row("IAE", fmt.Sprintf("%.3f", s.IAE)))
	b.WriteString(row("overshoot", fmt.Sprintf("%.1f%%", 100*s.Overshoot)))
	b.WriteString(row("PV σ", fmt.Sprintf("%.3f", s.PVStd)))
	b.WriteString(row("CV", Sparkline(cv, 20)))

	if m.snap.Ticks > 0 {
		ok := float64(m.snap.Ticks-m.snap.Failures) / float64(m.snap.Ticks)
		b.WriteString(row("healthy", ProgressBar(ok, 20)))
	}
	if m.snap.LastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle().Render("last error: " + m.snap.LastError))
	}
	return b.String()
}

func (m Model) View() string {
	cv, sp, pv := m.visible()
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.plot(cv, sp, pv)),
		statsStyle.Render(m.stats(cv, sp, pv)),
	)

	help := keyHint.Render("space freeze • t theme • +/- window • ? help • q quit")
	if m.showHelp {
		help = strings.Join([]string{
			separator(60),
			keyHint.Render("space  freeze or unfreeze the display"),
			keyHint.Render("t      cycle themes (" + strings.Join(ThemeNames(), ", ") + ")"),
			keyHint.Render("+/-    window " + fmt.Sprintf("%d", m.window) + " samples"),
			keyHint.Render("q      quit the view; the session keeps its own lifetime"),
		}, "\n")
	}
	return body + "\n" + help + "\n"
}

// Run blocks until the user quits the view or ctx is done.
func Run(ctx context.Context, src Source, period time.Duration) error {
	_, err := tea.NewProgram(NewModel(src, period), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
