package viz

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styles holds the lipgloss styles derived from one theme.
type styles struct {
	header  lipgloss.Style
	canvas  lipgloss.Style
	stats   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	graph   lipgloss.Style
	help    lipgloss.Style
	running lipgloss.Style
	paused  lipgloss.Style
	sparkHi lipgloss.Style
	sparkMd lipgloss.Style
	sparkLo lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		header:  lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1),
		canvas:  lipgloss.NewStyle().Foreground(t.Primary).Padding(1, 2),
		stats:   lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(t.Muted).Padding(1, 2).Width(46),
		label:   lipgloss.NewStyle().Foreground(t.Muted).Width(12),
		value:   lipgloss.NewStyle().Foreground(t.Text),
		graph:   lipgloss.NewStyle().Foreground(t.Accent).Padding(1, 0),
		help:    lipgloss.NewStyle().Foreground(t.Muted).Italic(true).MarginTop(1),
		running: lipgloss.NewStyle().Foreground(t.Good).Bold(true),
		paused:  lipgloss.NewStyle().Foreground(t.Warn).Bold(true),
		sparkHi: lipgloss.NewStyle().Foreground(t.Bad),
		sparkMd: lipgloss.NewStyle().Foreground(t.Warn),
		sparkLo: lipgloss.NewStyle().Foreground(t.Good),
	}
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline scales the last width values between their min and max.
// High values render in the warning colors.
func (s styles) Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	var b strings.Builder
	for _, v := range values {
		norm := (v - lo) / span
		idx := min(max(int(norm*float64(len(sparkChars)-1)), 0), len(sparkChars)-1)
		c := string(sparkChars[idx])
		switch {
		case norm > 0.7:
			b.WriteString(s.sparkHi.Render(c))
		case norm > 0.3:
			b.WriteString(s.sparkMd.Render(c))
		default:
			b.WriteString(s.sparkLo.Render(c))
		}
	}
	return b.String()
}

// ProgressBar renders frac of width as filled blocks.
func ProgressBar(frac float64, width int) string {
	filled := min(max(int(frac*float64(width)), 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
