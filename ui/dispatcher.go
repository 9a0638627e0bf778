package ui

import (
	"sync"

	"go.uber.org/zap"
)

// Result describes what handling an input or event did.
type Result struct {
	Event   Event
	From    ViewID
	To      ViewID
	Handled bool
	Changed bool
	Exit    bool
}

// Dispatcher tracks the current view. Only Dispatch changes it.
type Dispatcher struct {
	log     *zap.Logger
	graph   Graph
	mu      sync.RWMutex
	entry   ViewID
	current ViewID
}

// NewDispatcher validates graph and starts at entry.
func NewDispatcher(graph Graph, entry ViewID, log *zap.Logger) (*Dispatcher, error) {
	if err := graph.Validate(entry); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:     log,
		graph:   graph,
		entry:   entry,
		current: entry,
	}, nil
}

// Current returns the current view id.
func (d *Dispatcher) Current() ViewID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// View returns the current view.
func (d *Dispatcher) View() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.graph[d.current]
}

// HandleInput maps ev to the custom event bound in the current view. It does
// not change the view; unbound input is returned unhandled.
func (d *Dispatcher) HandleInput(ev InputEvent) Result {
	d.mu.RLock()
	cur := d.current
	e, ok := d.graph[cur].Bindings[Binding{Key: ev.Key, Type: ev.Type}]
	d.mu.RUnlock()

	if !ok {
		return Result{From: cur, To: cur}
	}
	d.log.Debug("input", zap.Stringer("key", ev.Key), zap.Stringer("type", ev.Type),
		zap.Stringer("view", cur), zap.Stringer("event", e))
	return Result{Event: e, From: cur, To: cur, Handled: true}
}

// Dispatch applies a custom event to the current view.
func (d *Dispatcher) Dispatch(e Event) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	from := d.current
	v := d.graph[from]
	res := Result{Event: e, From: from, To: from}

	if e == EventBack {
		res.Handled = true
		if !v.HasPrevious {
			res.Exit = true
			d.log.Debug("exit requested", zap.Stringer("view", from))
			return res
		}
		d.current = v.Previous
	} else {
		target, ok := v.On[e]
		if !ok {
			return res
		}
		res.Handled = true
		d.current = target
	}

	res.To = d.current
	res.Changed = res.To != from
	d.log.Debug("view changed", zap.Stringer("from", from), zap.Stringer("to", res.To), zap.Stringer("event", e))
	return res
}
