package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/kftrack/internal/sim"
)

const (
	width           = 70
	height          = 22
	historyCapacity = 600
	trailCapacity   = 400
	maxStepsPerTick = 64
)

type TickMsg time.Time

type point struct{ x, y float64 }

// Model drives one run frame by frame. It owns its Stepper; Reset builds a
// fresh one from the same configuration.
type Model struct {
	cfg          sim.Config
	st           *sim.Stepper
	canvas       *Canvas
	truth        []point
	est          []point
	meas         []point
	nis          []float64
	r            []float64
	last         sim.Record
	steps        int
	stepsPerTick int
	running      bool
	theme        int
	style        styles
	fps          int
}

func NewModel(cfg sim.Config) Model {
	m := Model{
		cfg:          cfg,
		canvas:       NewCanvas(width, height),
		stepsPerTick: 1,
		running:      true,
		fps:          60,
		style:        newStyles(Themes[0]),
	}
	m.reset()
	return m
}

// WithFPS sets the tick rate.
func (m Model) WithFPS(fps int) Model {
	if fps > 0 {
		m.fps = fps
	}
	return m
}

// WithTheme selects a theme by name.
func (m Model) WithTheme(name string) Model {
	for i, t := range Themes {
		if t.Name == name {
			m.theme = i
			m.style = newStyles(t)
		}
	}
	return m
}

func (m Model) Mode() sim.Mode { return m.st.Mode() }

func (m Model) Steps() int { return m.steps }

func (m Model) Running() bool { return m.running }

func (m Model) Last() sim.Record { return m.last }

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running && !m.st.Done()
		case "m":
			if m.st.Mode() == sim.Adaptive {
				m.st.SetMode(sim.Baseline)
			} else {
				m.st.SetMode(sim.Adaptive)
			}
		case "r":
			m.reset()
			m.running = true
		case "t":
			m.theme = (m.theme + 1) % len(Themes)
			m.style = newStyles(Themes[m.theme])
		case "+", "=":
			m.stepsPerTick = min(m.stepsPerTick*2, maxStepsPerTick)
		case "-", "_":
			m.stepsPerTick = max(m.stepsPerTick/2, 1)
		}
	case TickMsg:
		if m.running {
			for i := 0; i < m.stepsPerTick && !m.st.Done(); i++ {
				m.step()
			}
			if m.st.Done() {
				m.running = false
			}
		}
		return m, m.tick()
	}
	return m, nil
}

// step advances the run by one record and appends it to the trails.
func (m *Model) step() {
	rec := m.st.Step()
	m.last = rec
	m.steps++

	m.truth = appendCapped(m.truth, point{rec.Truth.X, rec.Truth.Y}, trailCapacity)
	m.est = appendCapped(m.est, point{rec.Estimate.X, rec.Estimate.Y}, trailCapacity)
	if rec.Meas.Valid {
		m.meas = appendCapped(m.meas, point{rec.Meas.ZX, rec.Meas.ZY}, trailCapacity)
	}
	if rec.Diag.Updated {
		m.nis = appendCapped(m.nis, rec.Diag.NIS, historyCapacity)
	}
	m.r = appendCapped(m.r, rec.R, historyCapacity)
}

// reset rebuilds the run from step 0, keeping the current mode.
func (m *Model) reset() {
	cfg := m.cfg
	if m.st != nil {
		cfg.Mode = m.st.Mode()
	}
	m.st = sim.NewStepper(cfg)
	m.steps = 0
	m.last = sim.Record{}
	m.truth = m.truth[:0]
	m.est = m.est[:0]
	m.meas = m.meas[:0]
	m.nis = m.nis[:0]
	m.r = m.r[:0]
}

func appendCapped[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

// viewport covers the truth and estimate trails. Measurements outside it
// (clutter) are clipped.
func (m *Model) viewport() Viewport {
	var v Viewport
	first := true
	for _, trail := range [][]point{m.truth, m.est} {
		for _, p := range trail {
			v.Fit(p.x, p.y, first)
			first = false
		}
	}
	return v.Pad(0.1, 10)
}

func (m *Model) draw() {
	m.canvas.Clear()
	if len(m.truth) == 0 {
		return
	}
	v := m.viewport()
	w, h := m.canvas.Dots()

	for _, p := range m.meas {
		x, y := v.Project(p.x, p.y, w, h)
		m.canvas.Set(x, y)
	}
	for i := 1; i < len(m.truth); i++ {
		x0, y0 := v.Project(m.truth[i-1].x, m.truth[i-1].y, w, h)
		x1, y1 := v.Project(m.truth[i].x, m.truth[i].y, w, h)
		m.canvas.DrawLine(x0, y0, x1, y1)
	}
	if n := len(m.est); n > 0 {
		x, y := v.Project(m.est[n-1].x, m.est[n-1].y, w, h)
		m.canvas.Cross(x, y)
	}
}

func (m Model) View() string {
	m.draw()
	s := m.style
	cfg := m.st.Config()
	rec := m.last

	var b strings.Builder
	b.WriteString(s.header.Render(fmt.Sprintf("KFTRACK  %s", strings.ToUpper(string(cfg.Scenario.Scenario)))) + "\n")

	status := s.running.Render("RUNNING")
	switch {
	case m.st.Done():
		status = s.paused.Render("DONE")
	case !m.running:
		status = s.paused.Render("PAUSED")
	}
	b.WriteString(fmt.Sprintf("%s  x%d\n", status, m.stepsPerTick))
	b.WriteString(ProgressBar(float64(m.steps)/float64(max(cfg.Scenario.Steps, 1)), 30) + "\n\n")

	row := func(label, value string) {
		b.WriteString(s.label.Render(label) + s.value.Render(value) + "\n")
	}
	row("Mode", string(m.st.Mode()))
	row("Step", fmt.Sprintf("%d/%d", m.steps, cfg.Scenario.Steps))
	row("r", fmt.Sprintf("%.3f", rec.R))
	row("q", fmt.Sprintf("%.3f", rec.Q))
	if rec.Diag.Updated {
		row("NIS", fmt.Sprintf("%.3f", rec.Diag.NIS))
	} else {
		row("NIS", "-")
	}
	row("NIS EMA", fmt.Sprintf("%.3f", rec.NISEMA))
	row("Pos err", fmt.Sprintf("%.3f", math.Hypot(rec.Estimate.X-rec.Truth.X, rec.Estimate.Y-rec.Truth.Y)))

	if len(m.nis) > 1 {
		chart := asciigraph.Plot(m.nis, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("NIS"))
		b.WriteString(s.graph.Render(chart) + "\n")
	}
	b.WriteString(s.label.Render("r history") + "\n" + s.Sparkline(m.r, 36) + "\n")

	b.WriteString(s.help.Render("SP:Pause M:Mode R:Restart\nT:Theme +/-:Speed Q:Quit"))

	canvas := s.canvas.Render(m.canvas.String() + "\n── truth  · meas  + estimate")
	return lipgloss.JoinHorizontal(lipgloss.Top, canvas, s.stats.Render(b.String()))
}
