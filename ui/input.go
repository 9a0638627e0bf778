// Package ui holds the input queue, the view dispatcher and the renderers.
package ui

import (
	"context"
	"sync"

	"github.com/wippyai/scripthost/errors"
)

// Key identifies a physical button.
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyRight
	KeyLeft
	KeyOK
	KeyBack
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyRight:
		return "right"
	case KeyLeft:
		return "left"
	case KeyOK:
		return "ok"
	case KeyBack:
		return "back"
	}
	return "unknown"
}

// PressType tells how a key was pressed.
type PressType int

const (
	Press PressType = iota
	Release
	Short
	Long
	Repeat
)

func (t PressType) String() string {
	switch t {
	case Press:
		return "press"
	case Release:
		return "release"
	case Short:
		return "short"
	case Long:
		return "long"
	case Repeat:
		return "repeat"
	}
	return "unknown"
}

// InputEvent is one key event.
type InputEvent struct {
	Key  Key
	Type PressType
}

// MinQueueCapacity is the smallest queue NewQueue creates.
const MinQueueCapacity = 8

// ErrClosed is returned by a closed queue.
var ErrClosed = errors.New(errors.PhaseUI, errors.KindClosed).Detail("input queue closed").Build()

// Queue is a bounded FIFO of input events. A full queue blocks producers and
// an empty one blocks the consumer; no event is ever dropped.
type Queue struct {
	ch        chan InputEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding at least MinQueueCapacity events.
func NewQueue(capacity int) *Queue {
	if capacity < MinQueueCapacity {
		capacity = MinQueueCapacity
	}
	return &Queue{
		ch:   make(chan InputEvent, capacity),
		done: make(chan struct{}),
	}
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.ch) }

// Put enqueues ev, waiting for space.
func (q *Queue) Put(ctx context.Context, ev InputEvent) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- ev:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the oldest event, waiting for one to arrive.
func (q *Queue) Get(ctx context.Context) (InputEvent, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-q.done:
		return InputEvent{}, ErrClosed
	case <-ctx.Done():
		return InputEvent{}, ctx.Err()
	}
}

// C exposes the receive side for select loops.
func (q *Queue) C() <-chan InputEvent { return q.ch }

// Done is closed once the queue stops accepting input.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Close stops accepting input and wakes blocked producers and consumers.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
