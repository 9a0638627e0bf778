package app

import (
	"io"
	"sync"

	"github.com/wippyai/scripthost/console"
	"github.com/wippyai/scripthost/ui"
)

// Frame is what a display shows: the current view over the console state.
type Frame struct {
	Console console.View
	View    ui.View
}

// Display receives frames from the loop. Update must not block and must not
// call back into the app.
type Display interface {
	Update(f Frame)
	Close() error
}

// Headless keeps frames in memory and renders them as text on demand.
type Headless struct {
	renderer *ui.Renderer
	frames   []Frame
	mu       sync.Mutex
	closed   bool
}

// NewHeadless returns a headless display using renderer for Text.
func NewHeadless(renderer *ui.Renderer) *Headless {
	if renderer == nil {
		renderer = ui.NewRenderer(32, 10)
	}
	return &Headless{renderer: renderer}
}

func (h *Headless) Update(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.frames = append(h.frames, f)
	}
}

func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Frames returns a copy of every frame received.
func (h *Headless) Frames() []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Frame(nil), h.frames...)
}

// Last returns the latest frame.
func (h *Headless) Last() (Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) == 0 {
		return Frame{}, false
	}
	return h.frames[len(h.frames)-1], true
}

// Closed reports whether Close was called.
func (h *Headless) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Text renders the latest frame.
func (h *Headless) Text() string {
	f, ok := h.Last()
	if !ok {
		return ""
	}
	return h.renderer.Render(f.View, f.Console)
}

// screenshot forwards frames and writes the last console frame as PNG on Close.
type screenshot struct {
	Display
	canvas *ui.Canvas
	w      io.Writer
	last   Frame
	mu     sync.Mutex
	have   bool
}

// WithScreenshot wraps d so that closing it writes the last console frame to
// w, or the first frame when the console was never shown.
func WithScreenshot(d Display, w io.Writer) Display {
	return &screenshot{Display: d, canvas: ui.NewCanvas(), w: w}
}

func (s *screenshot) Update(f Frame) {
	s.mu.Lock()
	if f.View.ID == ui.ViewConsole || !s.have {
		s.last, s.have = f, true
	}
	s.mu.Unlock()
	s.Display.Update(f)
}

func (s *screenshot) Close() error {
	err := s.Display.Close()

	s.mu.Lock()
	f, have := s.last, s.have
	s.mu.Unlock()
	if !have {
		return err
	}
	if perr := ui.EncodePNG(s.w, s.canvas.Render(f.View, f.Console)); perr != nil && err == nil {
		err = perr
	}
	return err
}
