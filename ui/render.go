package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/scripthost/console"
)

// Smallest frame a renderer draws.
const (
	MinWidth  = 8
	MinHeight = 4
)

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))
)

// Renderer draws view content into a fixed-size terminal frame.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer returns a renderer for a width x height frame, border included.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{Width: max(width, MinWidth), Height: max(height, MinHeight)}
}

// Render draws view v over console state c.
func (r *Renderer) Render(v View, c console.View) string {
	var ct Content
	if v.Content != nil {
		ct = v.Content(c)
	}
	return r.Draw(ct)
}

// Draw lays ct out inside the frame. Body text is wrapped to the frame width
// and top-aligned; when it does not fit, the newest lines are kept.
func (r *Renderer) Draw(ct Content) string {
	innerW := max(r.Width, MinWidth) - 2
	innerH := max(r.Height, MinHeight) - 2

	var lines []string
	if ct.Title != "" {
		lines = append(lines, titleStyle.Width(innerW).Align(lipgloss.Center).Render(ct.Title))
	}

	if body := strings.TrimSuffix(ct.Body, "\n"); body != "" {
		style := lipgloss.NewStyle().Width(innerW).Align(lipgloss.Center)
		if ct.Align == AlignLeft {
			style = style.Align(lipgloss.Left)
		}
		if ct.Anchor {
			for range clamp(ct.Y, 0, innerH-1) {
				lines = append(lines, "")
			}
			style = style.PaddingLeft(clamp(ct.X, 0, innerW-1))
		}
		lines = append(lines, strings.Split(style.Render(body), "\n")...)
	}

	if len(lines) > innerH {
		lines = lines[len(lines)-innerH:]
	}

	return frameStyle.
		Width(innerW).
		Height(innerH).
		Render(strings.Join(lines, "\n"))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
