package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/scripthost/app"
	"github.com/wippyai/scripthost/bridge"
	"github.com/wippyai/scripthost/config"
	"github.com/wippyai/scripthost/engine"
	"github.com/wippyai/scripthost/snapshot"
	"github.com/wippyai/scripthost/ui"
)

type options struct {
	configPath string
	screenshot string
	headless   bool
}

func main() {
	var (
		opts     options
		root     = flag.String("root", "", "Directory holding snapshots")
		snap     = flag.String("snapshot", "", "Snapshot file name inside the root")
		mode     = flag.String("mode", "", "Scheduling mode: cooperative or worker")
		timeout  = flag.Duration("timeout", 0, "Script call timeout (0 = none)")
		logFile  = flag.String("log", "", "Log file (stderr belongs to the terminal UI)")
		logLevel = flag.String("level", "", "Log level: debug, info, warn, error")
	)
	flag.StringVar(&opts.configPath, "config", "", "Path to "+config.FileName)
	flag.StringVar(&opts.screenshot, "screenshot", "", "Write the last console frame as PNG")
	flag.BoolVar(&opts.headless, "headless", false, "Run the script once without the terminal UI")
	flag.Parse()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.StorageRoot = *root
		case "snapshot":
			cfg.Snapshot = *snap
		case "mode":
			cfg.Mode = *mode
		case "timeout":
			cfg.ScriptTimeout = *timeout
		case "log":
			cfg.Log.File = *logFile
		case "level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads path, or ./scripthost.toml when present, over the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.FileName); err != nil {
			return config.Default(), nil
		}
		path = config.FileName
	}
	return config.Load(path)
}

func newLogger(c config.Log) (*zap.Logger, error) {
	if c.File == "" {
		return zap.NewNop(), nil
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.OutputPaths = []string{c.File}
	zc.ErrorOutputPaths = []string{c.File}
	return zc.Build()
}

func run(cfg *config.Config, opts options) error {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	snapshot.SetLogger(log.Named("snapshot"))
	engine.SetLogger(log.Named("engine"))
	bridge.SetLogger(log.Named("bridge"))

	mode, err := app.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	queue := ui.NewQueue(cfg.QueueCapacity)
	renderer := ui.NewRenderer(cfg.Display.Width, cfg.Display.Height)
	interactive := !opts.headless &&
		term.IsTerminal(int(os.Stdin.Fd())) &&
		term.IsTerminal(int(os.Stdout.Fd()))

	var (
		display  app.Display
		tui      *app.TUI
		headless *app.Headless
	)
	if interactive {
		tui = app.NewTUI(ctx, queue, renderer, stop, log.Named("tui"))
		display = tui
	} else {
		headless = app.NewHeadless(renderer)
		display = headless
	}

	if opts.screenshot != "" {
		f, err := os.Create(opts.screenshot)
		if err != nil {
			return fmt.Errorf("create screenshot: %w", err)
		}
		defer f.Close()
		display = app.WithScreenshot(display, f)
	}

	acfg := app.Config{
		FS:            os.DirFS(cfg.StorageRoot),
		Snapshot:      cfg.Snapshot,
		Mode:          mode,
		Queue:         queue,
		QueueCapacity: cfg.QueueCapacity,
		Timeout:       cfg.ScriptTimeout,
		Machine:       engine.Config{MemoryLimitPages: cfg.MemoryLimitPages},
		OnFatal: func(err error) {
			log.Error("fatal VM fault", zap.Error(err))
			_ = display.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			_ = log.Sync()
			os.Exit(2)
		},
	}
	if !interactive {
		acfg.OnAttempt = leaveAfterFirst(queue)
	}

	a, err := app.New(acfg, display, log)
	if err != nil {
		log.Error("load startup snapshot", zap.Error(err))
		return err
	}

	if interactive {
		tui.Start()
	} else if err := queue.Put(ctx, ui.InputEvent{Key: ui.KeyOK, Type: ui.Short}); err != nil {
		return err
	}

	err = a.Run(ctx)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}

	if headless != nil {
		fmt.Print(a.Console().Snapshot().Text)
		return a.LastErr()
	}
	return nil
}

// leaveAfterFirst backs out to the entry view and exits once a run is over.
func leaveAfterFirst(q *ui.Queue) func(int, error) {
	return func(int, error) {
		go func() {
			back := ui.InputEvent{Key: ui.KeyBack, Type: ui.Short}
			for range 2 {
				if q.Put(context.Background(), back) != nil {
					return
				}
			}
		}()
	}
}
