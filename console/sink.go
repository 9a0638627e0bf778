// Package console holds the text buffer scripts write to and the renderer reads.
package console

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// View is a consistent copy of the sink state.
type View struct {
	Text        string
	X           int
	Y           int
	Version     uint64
	HasPosition bool
}

// Sink is the single shared console buffer of one application run.
// Host callbacks mutate it; the renderer only reads Snapshot copies.
type Sink struct {
	diag    *zap.Logger
	redraw  chan struct{}
	buf     strings.Builder
	mu      sync.Mutex
	x, y    int
	version uint64
	hasPos  bool
}

// New creates an empty sink. Warnings are written to diag; a nil diag
// discards them.
func New(diag *zap.Logger) *Sink {
	if diag == nil {
		diag = zap.NewNop()
	}
	return &Sink{
		diag:   diag,
		redraw: make(chan struct{}, 1),
	}
}

// Redraw delivers one pending redraw request after any number of mutations.
func (s *Sink) Redraw() <-chan struct{} {
	return s.redraw
}

func (s *Sink) requestRedraw() {
	select {
	case s.redraw <- struct{}{}:
	default:
	}
}

// Clear truncates the buffer and forgets the position hint.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.buf.Reset()
	s.hasPos = false
	s.x, s.y = 0, 0
	s.version++
	s.mu.Unlock()
	s.requestRedraw()
}

// Log appends text and a newline.
func (s *Sink) Log(text string) {
	s.mu.Lock()
	s.buf.WriteString(text)
	s.buf.WriteByte('\n')
	s.version++
	s.mu.Unlock()
	s.requestRedraw()
}

// LogAt appends text and a newline and sets the draw position hint.
func (s *Sink) LogAt(text string, x, y int) {
	s.mu.Lock()
	s.buf.WriteString(text)
	s.buf.WriteByte('\n')
	s.x, s.y = x, y
	s.hasPos = true
	s.version++
	s.mu.Unlock()
	s.requestRedraw()
}

// Warn sends text to the diagnostic channel only. The visible buffer is
// untouched and no redraw is requested.
func (s *Sink) Warn(text string) {
	s.diag.Warn("console.warn", zap.String("text", text))
}

// Snapshot returns the current state.
func (s *Sink) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Text:        s.buf.String(),
		X:           s.x,
		Y:           s.y,
		HasPosition: s.hasPos,
		Version:     s.version,
	}
}

// Len returns the buffer length in bytes.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}
