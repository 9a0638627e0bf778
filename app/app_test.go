package app

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/errors"
	"github.com/wippyai/scripthost/snapshot"
	"github.com/wippyai/scripthost/ui"
)

func scriptFS(b *snapshot.Builder) fstest.MapFS {
	return fstest.MapFS{snapshot.DefaultName: &fstest.MapFile{Data: b.Bytes()}}
}

func hiScript() *snapshot.Builder {
	return snapshot.NewBuilder().Call(scripthost.ImportLog, snapshot.Str("hi"))
}

// leave returns an OnAttempt hook that walks back to the entry view and exits
// after n attempts.
func leave(t *testing.T, a **App, n int) func(int, error) {
	return func(got int, _ error) {
		if got < n {
			return
		}
		q := (*a).Queue()
		go func() {
			for range 2 {
				if err := q.Put(context.Background(), ui.InputEvent{Key: ui.KeyBack, Type: ui.Short}); err != nil {
					t.Logf("put back: %v", err)
					return
				}
			}
		}()
	}
}

func put(t *testing.T, a *App, evs ...ui.InputEvent) {
	t.Helper()
	for _, ev := range evs {
		if err := a.Queue().Put(context.Background(), ev); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
}

func run(t *testing.T, a *App, timeout time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.Run(ctx)
}

var okShort = ui.InputEvent{Key: ui.KeyOK, Type: ui.Short}

func TestRunShowsConsoleOutput(t *testing.T) {
	for _, mode := range []Mode{ModeCooperative, ModeWorker} {
		t.Run(mode.String(), func(t *testing.T) {
			display := NewHeadless(nil)
			var a *App
			a, err := New(Config{
				FS:        scriptFS(hiScript()),
				Mode:      mode,
				OnAttempt: leave(t, &a, 1),
			}, display, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			put(t, a, ui.InputEvent{Key: ui.KeyOK, Type: ui.Press}, okShort, ui.InputEvent{Key: ui.KeyOK, Type: ui.Release})
			if err := run(t, a, 5*time.Second); err != nil {
				t.Fatalf("Run: %v", err)
			}

			if a.Started() != 1 || a.Finished() != 1 {
				t.Errorf("attempts started=%d finished=%d", a.Started(), a.Finished())
			}
			if err := a.LastErr(); err != nil {
				t.Errorf("LastErr = %v", err)
			}
			if got := a.Console().Snapshot().Text; got != "hi\n" {
				t.Errorf("console = %q, want %q", got, "hi\n")
			}

			var shown bool
			for _, f := range display.Frames() {
				if f.View.ID == ui.ViewConsole && f.Console.Text == "hi\n" {
					shown = true
				}
			}
			if !shown {
				t.Error("no frame showed the console output")
			}
			if !display.Closed() {
				t.Error("display not closed")
			}
		})
	}
}

func TestStartupLoadFailure(t *testing.T) {
	_, err := New(Config{FS: fstest.MapFS{}}, NewHeadless(nil), zaptest.NewLogger(t))
	if !errors.IsStorage(err) {
		t.Fatalf("New error = %v, want storage error", err)
	}
}

func TestNewValidation(t *testing.T) {
	fsys := scriptFS(hiScript())
	if _, err := New(Config{}, NewHeadless(nil), nil); err == nil {
		t.Error("nil FS accepted")
	}
	if _, err := New(Config{FS: fsys}, nil, nil); err == nil {
		t.Error("nil display accepted")
	}
}

func TestBackOnEntryExits(t *testing.T) {
	display := NewHeadless(nil)
	a, err := New(Config{FS: scriptFS(hiScript())}, display, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	put(t, a, ui.InputEvent{Key: ui.KeyUp, Type: ui.Short}, ui.InputEvent{Key: ui.KeyBack, Type: ui.Short})
	if err := run(t, a, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Started() != 0 {
		t.Errorf("started %d attempts", a.Started())
	}
	if f, _ := display.Last(); f.View.ID != ui.ViewMain {
		t.Errorf("last view = %s", f.View.ID)
	}
}

func TestRerunViaConfirm(t *testing.T) {
	for _, mode := range []Mode{ModeCooperative, ModeWorker} {
		t.Run(mode.String(), func(t *testing.T) {
			var a *App
			var once sync.Once
			a, err := New(Config{
				FS:   scriptFS(hiScript()),
				Mode: mode,
				OnAttempt: func(n int, err error) {
					switch n {
					case 1:
						once.Do(func() {
							q := a.Queue()
							go func() {
								_ = q.Put(context.Background(), ui.InputEvent{Key: ui.KeyOK, Type: ui.Long})
								_ = q.Put(context.Background(), okShort)
							}()
						})
					case 2:
						leave(t, &a, 2)(n, err)
					}
				},
			}, NewHeadless(nil), zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			put(t, a, okShort)
			if err := run(t, a, 5*time.Second); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if a.Finished() != 2 {
				t.Errorf("finished %d attempts, want 2", a.Finished())
			}
			if got := a.Console().Snapshot().Text; got != "hi\n" {
				t.Errorf("console = %q, want a fresh %q", got, "hi\n")
			}
		})
	}
}

func TestRerunReloadFailureIsAttemptScoped(t *testing.T) {
	fsys := scriptFS(hiScript())
	var a *App
	a, err := New(Config{
		FS: fsys,
		OnAttempt: func(n int, _ error) {
			delete(fsys, snapshot.DefaultName)
			q := a.Queue()
			go func() {
				for _, ev := range []ui.InputEvent{
					{Key: ui.KeyOK, Type: ui.Long},
					okShort,
					{Key: ui.KeyBack, Type: ui.Short},
					{Key: ui.KeyBack, Type: ui.Short},
					{Key: ui.KeyBack, Type: ui.Short},
				} {
					if q.Put(context.Background(), ev) != nil {
						return
					}
				}
			}()
		},
	}, NewHeadless(nil), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	put(t, a, okShort)
	if err := run(t, a, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Started() != 1 {
		t.Errorf("started %d attempts, want 1", a.Started())
	}
	if !errors.IsStorage(a.LastErr()) {
		t.Errorf("LastErr = %v, want storage error", a.LastErr())
	}
}

func TestScriptErrorIsAttemptScoped(t *testing.T) {
	var a *App
	a, err := New(Config{
		FS:        scriptFS(hiScript().Return(3)),
		OnAttempt: leave(t, &a, 1),
	}, NewHeadless(nil), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	put(t, a, okShort)
	if err := run(t, a, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.IsRuntime(a.LastErr()) || errors.CodeOf(a.LastErr()) != 3 {
		t.Errorf("LastErr = %v, want runtime error 3", a.LastErr())
	}
	if got := a.Console().Snapshot().Text; got != "hi\n" {
		t.Errorf("console = %q", got)
	}
}

func TestRunWhileWorkerActiveOnlySwitchesViews(t *testing.T) {
	var a *App
	a, err := New(Config{
		FS:        scriptFS(snapshot.NewBuilder().Spin()),
		Mode:      ModeWorker,
		Timeout:   500 * time.Millisecond,
		OnAttempt: leave(t, &a, 1),
	}, NewHeadless(nil), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	put(t, a, okShort, ui.InputEvent{Key: ui.KeyBack, Type: ui.Short}, okShort)
	if err := run(t, a, 10*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Started() != 1 {
		t.Errorf("started %d attempts, want 1", a.Started())
	}
	if errors.CodeOf(a.LastErr()) != int32(scripthost.StatusTimeout) {
		t.Errorf("LastErr = %v, want timeout", a.LastErr())
	}
}

func TestCancelWaitsForRunningScript(t *testing.T) {
	const budget = 300 * time.Millisecond
	display := NewHeadless(nil)
	a, err := New(Config{
		FS:      scriptFS(snapshot.NewBuilder().Spin()),
		Mode:    ModeWorker,
		Timeout: budget,
	}, display, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	put(t, a, okShort)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for a.Started() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	begin := time.Now()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if elapsed := time.Since(begin); elapsed < budget {
		t.Errorf("Run returned after %s, before the script's %s budget ran out", elapsed, budget)
	}
	if a.Finished() != 1 {
		t.Errorf("finished %d attempts, want 1", a.Finished())
	}
	var e *errors.Error
	if !stderrors.As(a.LastErr(), &e) || e.Kind != errors.KindTimeout {
		t.Errorf("LastErr = %v, want the script's own timeout", a.LastErr())
	}
	if !display.Closed() {
		t.Error("display not closed")
	}
}

func TestBackExitWaitsForRunningScript(t *testing.T) {
	const budget = 300 * time.Millisecond
	a, err := New(Config{
		FS:      scriptFS(snapshot.NewBuilder().Spin()),
		Mode:    ModeWorker,
		Timeout: budget,
	}, NewHeadless(nil), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	back := ui.InputEvent{Key: ui.KeyBack, Type: ui.Short}
	put(t, a, okShort, back, back)

	begin := time.Now()
	if err := run(t, a, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(begin); elapsed < budget {
		t.Errorf("Run returned after %s, before the script's %s budget ran out", elapsed, budget)
	}
	if a.Finished() != 1 {
		t.Errorf("finished %d attempts, want 1", a.Finished())
	}
	if errors.CodeOf(a.LastErr()) != int32(scripthost.StatusTimeout) {
		t.Errorf("LastErr = %v, want timeout", a.LastErr())
	}
}

func TestLoadFailureReturnsToEntryView(t *testing.T) {
	tests := []struct {
		name   string
		script *snapshot.Builder
		check  func(error) bool
	}{
		{"unresolved import", snapshot.NewBuilder().Call(scripthost.ImportID(9)), errors.IsRestore},
		{"missing entry point", hiScript().WithoutExport(), errors.IsExport},
	}
	for _, tt := range tests {
		for _, mode := range []Mode{ModeCooperative, ModeWorker} {
			t.Run(tt.name+"/"+mode.String(), func(t *testing.T) {
				var (
					a       *App
					view    ui.ViewID
					attempt error
				)
				a, err := New(Config{
					FS:   scriptFS(tt.script),
					Mode: mode,
					OnAttempt: func(_ int, err error) {
						view, attempt = a.Dispatcher().Current(), err
						q := a.Queue()
						go func() {
							_ = q.Put(context.Background(), ui.InputEvent{Key: ui.KeyBack, Type: ui.Short})
						}()
					},
				}, NewHeadless(nil), zaptest.NewLogger(t))
				if err != nil {
					t.Fatalf("New: %v", err)
				}

				put(t, a, okShort)
				if err := run(t, a, 5*time.Second); err != nil {
					t.Fatalf("Run: %v", err)
				}
				if !tt.check(attempt) {
					t.Fatalf("attempt error = %v", attempt)
				}
				if view != ui.ViewMain {
					t.Errorf("view after failed load = %s, want main", view)
				}
			})
		}
	}
}

func TestFatalFaultReported(t *testing.T) {
	var fatal error
	var a *App
	a, err := New(Config{
		FS:        scriptFS(snapshot.NewBuilder().Fault()),
		OnFatal:   func(err error) { fatal = err },
		OnAttempt: leave(t, &a, 1),
	}, NewHeadless(nil), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	put(t, a, okShort)
	if err := run(t, a, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.IsFatal(fatal) {
		t.Errorf("fatal handler got %v", fatal)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeCooperative, true},
		{"cooperative", ModeCooperative, true},
		{"Worker", ModeWorker, true},
		{"threads", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestScreenshotWritesConsoleFrame(t *testing.T) {
	var buf strings.Builder
	headless := NewHeadless(nil)
	var a *App
	a, err := New(Config{
		FS:        scriptFS(hiScript()),
		OnAttempt: leave(t, &a, 1),
	}, WithScreenshot(headless, &buf), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	put(t, a, okShort)
	if err := run(t, a, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "\x89PNG") {
		t.Errorf("screenshot is not a PNG (%d bytes)", buf.Len())
	}
}

func TestTUIModelKeys(t *testing.T) {
	q := ui.NewQueue(16)
	tui := NewTUI(context.Background(), q, ui.NewRenderer(30, 8), nil, zaptest.NewLogger(t))
	m := tui.model()

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("z")})

	want := []ui.InputEvent{
		{Key: ui.KeyOK, Type: ui.Press}, {Key: ui.KeyOK, Type: ui.Short}, {Key: ui.KeyOK, Type: ui.Release},
		{Key: ui.KeyOK, Type: ui.Press}, {Key: ui.KeyOK, Type: ui.Long}, {Key: ui.KeyOK, Type: ui.Release},
		{Key: ui.KeyBack, Type: ui.Press}, {Key: ui.KeyBack, Type: ui.Short}, {Key: ui.KeyBack, Type: ui.Release},
	}
	if q.Len() != len(want) {
		t.Fatalf("queued %d events, want %d", q.Len(), len(want))
	}
	for i, w := range want {
		got, _ := q.Get(context.Background())
		if got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestTUIModelQuit(t *testing.T) {
	quit := false
	tui := NewTUI(context.Background(), ui.NewQueue(8), ui.NewRenderer(30, 8), func() { quit = true }, nil)
	m := tui.model()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !quit {
		t.Error("onQuit not called")
	}
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command is not tea.Quit")
	}
}

func TestTUIFrameMailbox(t *testing.T) {
	tui := NewTUI(context.Background(), ui.NewQueue(8), ui.NewRenderer(30, 8), nil, nil)
	g := ui.DefaultGraph()

	tui.Update(Frame{View: g[ui.ViewMain]})
	tui.Update(Frame{View: g[ui.ViewConsole]})

	msg, ok := tui.next().(frameMsg)
	if !ok || msg.View.ID != ui.ViewConsole {
		t.Fatalf("next = %+v, want newest frame", msg)
	}

	m := tui.model()
	if v := m.View(); !strings.Contains(v, "loading") {
		t.Errorf("unready view = %q", v)
	}
	m.Update(msg)
	if v := m.View(); !strings.Contains(v, "quit") {
		t.Errorf("view lacks help line:\n%s", v)
	}

	if err := tui.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := tui.next().(closeMsg); !ok {
		t.Error("next after Close is not closeMsg")
	}
}
