// Package app runs the event loop that ties input, views, the console and
// script attempts together.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/scripthost/bridge"
	"github.com/wippyai/scripthost/console"
	"github.com/wippyai/scripthost/engine"
	"github.com/wippyai/scripthost/errors"
	"github.com/wippyai/scripthost/host"
	"github.com/wippyai/scripthost/snapshot"
	"github.com/wippyai/scripthost/ui"
)

// Mode selects where a script attempt runs.
type Mode int

const (
	// ModeCooperative runs the script on the loop goroutine. Input queues up
	// until it returns.
	ModeCooperative Mode = iota
	// ModeWorker runs the script on its own goroutine while the loop keeps
	// draining input and redraws.
	ModeWorker
)

func (m Mode) String() string {
	switch m {
	case ModeCooperative:
		return "cooperative"
	case ModeWorker:
		return "worker"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses "cooperative" or "worker".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cooperative":
		return ModeCooperative, nil
	case "worker":
		return ModeWorker, nil
	}
	return 0, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown mode %q", s))
}

// Config configures an App.
type Config struct {
	// FS holds snapshot images.
	FS fs.FS

	// OnFatal receives fatal VM faults. Nil keeps the bridge default, which
	// logs and exits the process.
	OnFatal bridge.FatalHandler

	// OnAttempt is called on the loop goroutine after each attempt.
	OnAttempt func(n int, err error)

	// Snapshot is the image name inside FS. Empty means snapshot.DefaultName.
	Snapshot string

	// Queue receives input. Nil creates one with QueueCapacity slots.
	Queue *ui.Queue

	Machine engine.Config

	// Timeout bounds one script call. Zero means no bound.
	Timeout time.Duration

	QueueCapacity int

	Mode Mode
}

// App owns one application run.
type App struct {
	cfg      Config
	log      *zap.Logger
	sink     *console.Sink
	table    *host.Table
	queue    *ui.Queue
	disp     *ui.Dispatcher
	display  Display
	startup  *snapshot.Image
	done     chan error
	lastErr  error
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  int
	views    int
	finished int
	running  bool
}

// New loads the startup snapshot and builds the components. A load failure
// is returned as a storage error and the app is not created.
func New(cfg Config, display Display, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FS == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "no snapshot filesystem")
	}
	if display == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "no display")
	}
	if cfg.Snapshot == "" {
		cfg.Snapshot = snapshot.DefaultName
	}
	// Calls are only interrupted by their own timeout.
	cfg.Machine.CloseOnContextDone = cfg.Timeout > 0

	image, err := snapshot.Load(cfg.FS, cfg.Snapshot)
	if err != nil {
		return nil, err
	}

	graph := ui.DefaultGraph()
	disp, err := ui.NewDispatcher(graph, ui.ViewMain, log.Named("ui"))
	if err != nil {
		return nil, err
	}

	queue := cfg.Queue
	if queue == nil {
		queue = ui.NewQueue(cfg.QueueCapacity)
	}

	sink := console.New(log.Named("script"))
	return &App{
		cfg:     cfg,
		log:     log,
		sink:    sink,
		table:   host.NewTable(sink, log.Named("host")),
		queue:   queue,
		disp:    disp,
		views:   len(graph),
		display: display,
		startup: image,
		done:    make(chan error, 1),
	}, nil
}

// Queue is where input producers put events.
func (a *App) Queue() *ui.Queue { return a.queue }

// Console returns the console sink scripts write to.
func (a *App) Console() *console.Sink { return a.sink }

// Dispatcher returns the view dispatcher.
func (a *App) Dispatcher() *ui.Dispatcher { return a.disp }

// Started returns how many attempts have started.
func (a *App) Started() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Finished returns how many attempts have finished.
func (a *App) Finished() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// LastErr returns the result of the most recent attempt.
func (a *App) LastErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Run drives the loop until the entry view is left with Back or ctx ends,
// then tears down: input stops, a running worker is awaited, the unused
// startup image is dropped and the display is closed. Cancelling ctx never
// interrupts a script call that has begun; only its own timeout stops it.
func (a *App) Run(ctx context.Context) error {
	attemptCtx := context.WithoutCancel(ctx)

	a.log.Info("app started", zap.Stringer("mode", a.cfg.Mode), zap.String("snapshot", a.cfg.Snapshot))
	a.repaint()

	err := a.loop(ctx, attemptCtx)

	a.queue.Close()
	if a.isRunning() {
		a.log.Info("waiting for the running script")
	}
	a.wg.Wait()
	select {
	case res := <-a.done:
		a.finish(res)
	default:
	}
	if a.startup != nil {
		a.startup.Release()
		a.startup = nil
	}
	if cerr := a.display.Close(); cerr != nil {
		a.log.Warn("close display", zap.Error(cerr))
	}
	a.log.Info("app stopped", zap.Int("attempts", a.Finished()))
	return err
}

func (a *App) loop(ctx, attemptCtx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.queue.C():
			if a.handle(attemptCtx, ev) {
				return nil
			}
		case <-a.sink.Redraw():
			a.repaint()
		case res := <-a.done:
			a.finish(res)
		}
	}
}

// handle reports whether the app should exit.
func (a *App) handle(ctx context.Context, ev ui.InputEvent) bool {
	in := a.disp.HandleInput(ev)
	if !in.Handled {
		return false
	}
	res := a.disp.Dispatch(in.Event)
	if res.Exit {
		return true
	}
	if res.Changed {
		a.repaint()
	}
	if res.Changed && (res.Event == ui.EventRun || res.Event == ui.EventRerun) {
		a.start(ctx)
	}
	return false
}

func (a *App) start(ctx context.Context) {
	if a.isRunning() {
		a.log.Debug("attempt already running")
		return
	}

	image, err := a.nextImage()
	if err != nil {
		a.log.Error("reload snapshot", zap.Error(err))
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		return
	}

	a.sink.Clear()
	a.mu.Lock()
	a.started++
	n := a.started
	a.running = true
	a.mu.Unlock()

	a.log.Debug("attempt started", zap.Int("attempt", n), zap.Stringer("mode", a.cfg.Mode))

	if a.cfg.Mode == ModeCooperative {
		a.finish(a.attempt(ctx, image))
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.done <- a.attempt(ctx, image)
	}()
}

// nextImage hands out the startup image once, then reloads from storage.
func (a *App) nextImage() (*snapshot.Image, error) {
	if img := a.startup; img != nil {
		a.startup = nil
		return img, nil
	}
	return snapshot.Load(a.cfg.FS, a.cfg.Snapshot)
}

func (a *App) attempt(ctx context.Context, image *snapshot.Image) error {
	opts := []bridge.Option{bridge.WithTimeout(a.cfg.Timeout)}
	if a.cfg.OnFatal != nil {
		opts = append(opts, bridge.WithFatalHandler(a.cfg.OnFatal))
	}
	b := bridge.New(engine.NewMachine(&a.cfg.Machine), a.table, opts...)
	err := b.Run(ctx, image)

	trace := b.Trace()
	states := make([]string, len(trace))
	for i, s := range trace {
		states[i] = s.String()
	}
	a.log.Debug("attempt finished", zap.Strings("trace", states), zap.Error(err))
	return err
}

func (a *App) finish(err error) {
	a.mu.Lock()
	a.running = false
	a.finished++
	n := a.finished
	a.lastErr = err
	a.mu.Unlock()

	if errors.IsRestore(err) || errors.IsExport(err) {
		a.toEntry()
	}
	a.repaint()
	if a.cfg.OnAttempt != nil {
		a.cfg.OnAttempt(n, err)
	}
}

// toEntry walks Back to the entry view. A snapshot that never ran leaves
// nothing to show on the console.
func (a *App) toEntry() {
	for range a.views {
		if a.disp.Current() == ui.ViewMain {
			return
		}
		a.disp.Dispatch(ui.EventBack)
	}
}

func (a *App) isRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *App) repaint() {
	a.display.Update(Frame{View: a.disp.View(), Console: a.sink.Snapshot()})
}
