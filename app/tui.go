package app

import (
	"context"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost/ui"
)

var statusStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#666666"))

type keyMap struct {
	OK    key.Binding
	Hold  key.Binding
	Back  key.Binding
	Up    key.Binding
	Down  key.Binding
	Left  key.Binding
	Right key.Binding
	Help  key.Binding
	Quit  key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		OK:    key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "ok")),
		Hold:  key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "hold ok")),
		Back:  key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right: key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "right")),
		Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:  key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.OK, k.Hold, k.Back, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.OK, k.Hold, k.Back},
		{k.Up, k.Down, k.Left, k.Right},
		{k.Help, k.Quit},
	}
}

// events turns one terminal key into the press sequence a button produces.
func (k keyMap) events(msg tea.KeyMsg) []ui.InputEvent {
	var (
		btn  ui.Key
		kind = ui.Short
	)
	switch {
	case key.Matches(msg, k.OK):
		btn = ui.KeyOK
	case key.Matches(msg, k.Hold):
		btn, kind = ui.KeyOK, ui.Long
	case key.Matches(msg, k.Back):
		btn = ui.KeyBack
	case key.Matches(msg, k.Up):
		btn = ui.KeyUp
	case key.Matches(msg, k.Down):
		btn = ui.KeyDown
	case key.Matches(msg, k.Left):
		btn = ui.KeyLeft
	case key.Matches(msg, k.Right):
		btn = ui.KeyRight
	default:
		return nil
	}
	return []ui.InputEvent{
		{Key: btn, Type: ui.Press},
		{Key: btn, Type: kind},
		{Key: btn, Type: ui.Release},
	}
}

type frameMsg Frame

type closeMsg struct{}

// TUI is a bubbletea display. Key presses become input events on the queue;
// frames arrive through a one-slot mailbox that always holds the newest.
type TUI struct {
	ctx       context.Context
	log       *zap.Logger
	queue     *ui.Queue
	renderer  *ui.Renderer
	onQuit    func()
	frames    chan Frame
	quit      chan struct{}
	done      chan error
	opts      []tea.ProgramOption
	closeOnce sync.Once
	started   bool
}

// NewTUI returns a terminal display feeding queue. onQuit is called when
// the user asks to quit.
func NewTUI(ctx context.Context, queue *ui.Queue, renderer *ui.Renderer, onQuit func(), log *zap.Logger, opts ...tea.ProgramOption) *TUI {
	if log == nil {
		log = zap.NewNop()
	}
	if onQuit == nil {
		onQuit = func() {}
	}
	return &TUI{
		ctx:      ctx,
		log:      log,
		queue:    queue,
		renderer: renderer,
		onQuit:   onQuit,
		frames:   make(chan Frame, 1),
		quit:     make(chan struct{}),
		done:     make(chan error, 1),
		opts:     opts,
	}
}

// Start runs the bubbletea program in the background.
func (t *TUI) Start() {
	t.started = true
	p := tea.NewProgram(t.model(), append([]tea.ProgramOption{tea.WithAltScreen()}, t.opts...)...)
	go func() {
		_, err := p.Run()
		t.done <- err
	}()
}

func (t *TUI) model() *tuiModel {
	return &tuiModel{tui: t, keys: defaultKeyMap(), help: help.New()}
}

// Update replaces any frame not yet drawn.
func (t *TUI) Update(f Frame) {
	for {
		select {
		case t.frames <- f:
			return
		default:
		}
		select {
		case <-t.frames:
		default:
		}
	}
}

// Close stops the program and waits for the terminal to be restored.
func (t *TUI) Close() error {
	t.closeOnce.Do(func() { close(t.quit) })
	if !t.started {
		return nil
	}
	return <-t.done
}

func (t *TUI) next() tea.Msg {
	select {
	case f := <-t.frames:
		return frameMsg(f)
	case <-t.quit:
		return closeMsg{}
	}
}

type tuiModel struct {
	tui   *TUI
	keys  keyMap
	help  help.Model
	frame Frame
	ready bool
}

func (m *tuiModel) Init() tea.Cmd {
	return m.tui.next
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame = Frame(msg)
		m.ready = true
		return m, m.tui.next

	case closeMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.tui.onQuit()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
		// Put blocks while the queue is full, holding back further keys.
		for _, ev := range m.keys.events(msg) {
			if err := m.tui.queue.Put(m.tui.ctx, ev); err != nil {
				m.tui.log.Debug("input dropped after shutdown", zap.Stringer("key", ev.Key), zap.Error(err))
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m *tuiModel) View() string {
	if !m.ready {
		return statusStyle.Render("loading...")
	}
	return m.tui.renderer.Render(m.frame.View, m.frame.Console) + "\n" + m.help.View(m.keys)
}
