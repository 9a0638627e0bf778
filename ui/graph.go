package ui

import (
	"fmt"

	"github.com/wippyai/scripthost/console"
	"github.com/wippyai/scripthost/errors"
)

// ViewID names a view.
type ViewID int

const (
	ViewMain ViewID = iota
	ViewConsole
	ViewConfirm
)

func (v ViewID) String() string {
	switch v {
	case ViewMain:
		return "main"
	case ViewConsole:
		return "console"
	case ViewConfirm:
		return "confirm"
	}
	return fmt.Sprintf("view(%d)", int(v))
}

// Event is a custom dispatch event. Views change only in response to one.
type Event int

const (
	EventNone Event = iota
	// EventRun asks to start the script from the entry view.
	EventRun
	// EventBack returns to the previous view, or exits from the entry view.
	EventBack
	// EventAskRerun opens the rerun confirmation.
	EventAskRerun
	// EventRerun confirms running the script again.
	EventRerun
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventRun:
		return "run"
	case EventBack:
		return "back"
	case EventAskRerun:
		return "ask_rerun"
	case EventRerun:
		return "rerun"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Binding is a key and press type a view reacts to.
type Binding struct {
	Key  Key
	Type PressType
}

// Align is the horizontal placement of body text.
type Align int

const (
	AlignCenter Align = iota
	AlignLeft
)

// Content is what a view shows.
type Content struct {
	Title  string
	Body   string
	X, Y   int
	Align  Align
	Anchor bool // X and Y are set
}

// ContentFunc builds a view's content from the console state.
type ContentFunc func(c console.View) Content

// View declares a view's place in the graph.
type View struct {
	Bindings    map[Binding]Event
	On          map[Event]ViewID
	Content     ContentFunc
	ID          ViewID
	Previous    ViewID
	HasPrevious bool
}

// Graph maps view ids to views.
type Graph map[ViewID]View

// Validate checks that entry exists and has no previous view, that every
// other view has a previous view in the graph, and that every transition
// target exists.
func (g Graph) Validate(entry ViewID) error {
	ev, ok := g[entry]
	if !ok {
		return errors.InvalidInput(errors.PhaseUI, fmt.Sprintf("entry view %s not in graph", entry))
	}
	if ev.HasPrevious {
		return errors.InvalidInput(errors.PhaseUI, "entry view cannot have a previous view")
	}
	for id, v := range g {
		if v.ID != id {
			return errors.InvalidInput(errors.PhaseUI, fmt.Sprintf("view %s registered as %s", v.ID, id))
		}
		if id != entry {
			if !v.HasPrevious {
				return errors.InvalidInput(errors.PhaseUI, fmt.Sprintf("view %s has no previous view", id))
			}
			if _, ok := g[v.Previous]; !ok {
				return errors.InvalidInput(errors.PhaseUI, fmt.Sprintf("view %s: previous %s not in graph", id, v.Previous))
			}
		}
		for e, target := range v.On {
			if e == EventBack {
				return errors.InvalidInput(errors.PhaseUI, fmt.Sprintf("view %s: back is resolved through Previous", id))
			}
			if _, ok := g[target]; !ok {
				return errors.InvalidInput(errors.PhaseUI, fmt.Sprintf("view %s: %s targets unknown view %s", id, e, target))
			}
		}
	}
	return nil
}

// DefaultGraph is the entry/console/confirm view graph:
//
//	main    --OK-->       console  (run)
//	console --long OK-->  confirm  (ask rerun)
//	confirm --OK-->       console  (rerun)
//	back: confirm -> console -> main -> exit
func DefaultGraph() Graph {
	return Graph{
		ViewMain: {
			ID: ViewMain,
			Bindings: map[Binding]Event{
				{KeyOK, Short}:   EventRun,
				{KeyBack, Short}: EventBack,
			},
			On: map[Event]ViewID{EventRun: ViewConsole},
			Content: func(console.View) Content {
				return Content{Title: "Script", Body: "Press OK to run"}
			},
		},
		ViewConsole: {
			ID:          ViewConsole,
			Previous:    ViewMain,
			HasPrevious: true,
			Bindings: map[Binding]Event{
				{KeyOK, Long}:    EventAskRerun,
				{KeyBack, Short}: EventBack,
			},
			On: map[Event]ViewID{EventAskRerun: ViewConfirm},
			Content: func(c console.View) Content {
				if c.HasPosition {
					return Content{Body: c.Text, X: c.X, Y: c.Y, Align: AlignLeft, Anchor: true}
				}
				return Content{Body: c.Text}
			},
		},
		ViewConfirm: {
			ID:          ViewConfirm,
			Previous:    ViewConsole,
			HasPrevious: true,
			Bindings: map[Binding]Event{
				{KeyOK, Short}:   EventRerun,
				{KeyBack, Short}: EventBack,
			},
			On: map[Event]ViewID{EventRerun: ViewConsole},
			Content: func(console.View) Content {
				return Content{Title: "Run again?", Body: "OK run / Back cancel"}
			},
		},
	}
}
