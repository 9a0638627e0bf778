// Package bridge drives one script execution attempt:
//
//	Unloaded → Restoring → Resolving → Calling → Collecting → Done
//
// A failed restore or export lookup is terminal. Once Calling is entered the
// instance is always collected, whether or not the call succeeded.
package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/errors"
	"github.com/wippyai/scripthost/snapshot"
)

// State is a bridge lifecycle state.
type State int

const (
	Unloaded State = iota
	Restoring
	Resolving
	Calling
	Collecting
	Done
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Restoring:
		return "restoring"
	case Resolving:
		return "resolving"
	case Calling:
		return "calling"
	case Collecting:
		return "collecting"
	case Done:
		return "done"
	}
	return "unknown"
}

// FatalHandler receives unrecoverable VM faults. The default handler logs the
// fault with zap's Fatal level, which exits the process.
type FatalHandler func(err error)

type options struct {
	onFatal FatalHandler
	timeout time.Duration
	export  scripthost.ExportID
}

// Option configures a Bridge.
type Option func(*options)

// WithExport selects the entry point. Defaults to scripthost.ExportInit.
func WithExport(id scripthost.ExportID) Option {
	return func(o *options) { o.export = id }
}

// WithTimeout bounds the entry point call. Zero, the default, means no
// timeout; the machine must close modules on context done for it to apply.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithFatalHandler replaces the process-exiting fatal fault handler.
func WithFatalHandler(h FatalHandler) Option {
	return func(o *options) { o.onFatal = h }
}

func defaultFatal(err error) {
	Logger().Fatal("fatal VM fault", zap.Error(err))
}

// Bridge runs a single execution attempt. It is not reusable.
type Bridge struct {
	machine  scripthost.Machine
	resolver scripthost.ImportResolver
	err      error
	opts     options
	trace    []State
	mu       sync.Mutex
	state    State
}

// New creates a bridge that restores through machine and resolves imports
// through resolver.
func New(machine scripthost.Machine, resolver scripthost.ImportResolver, opts ...Option) *Bridge {
	o := options{
		export:  scripthost.ExportInit,
		onFatal: defaultFatal,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bridge{
		machine:  machine,
		resolver: resolver,
		opts:     o,
	}
}

// State returns the current state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trace returns every state entered, in order.
func (b *Bridge) Trace() []State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]State(nil), b.trace...)
}

// Err returns the error the run ended with.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Bridge) enter(s State) {
	b.mu.Lock()
	b.state = s
	b.trace = append(b.trace, s)
	b.mu.Unlock()
	Logger().Debug("bridge state", zap.Stringer("state", s))
}

func (b *Bridge) finish(err error) error {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	return err
}

// Run restores image, calls the entry point and collects the VM. The image is
// released once the VM that borrowed it has been torn down.
func (b *Bridge) Run(ctx context.Context, image *snapshot.Image) error {
	b.mu.Lock()
	if b.state != Unloaded {
		b.mu.Unlock()
		return errors.InvalidInput(errors.PhaseRestore, "bridge already ran")
	}
	b.state = Restoring
	b.trace = append(b.trace, Restoring)
	b.mu.Unlock()
	Logger().Debug("bridge state", zap.Stringer("state", Restoring))

	if image == nil || image.Bytes() == nil {
		return b.finish(errors.Restore(errors.KindInvalidImage, "no snapshot image", nil))
	}

	inst, err := b.machine.Restore(ctx, image.Bytes(), b.resolver)
	if err != nil {
		Logger().Error("restore failed", zap.String("snapshot", image.Name()), zap.Error(err))
		image.Release()
		return b.finish(asPhase(err, errors.PhaseRestore, errors.KindInvalidImage, "restore snapshot"))
	}

	b.enter(Resolving)
	fn, err := inst.ResolveExport(b.opts.export)
	if err != nil {
		Logger().Error("entry point not exported", zap.Uint16("export", uint16(b.opts.export)), zap.Error(err))
		b.enter(Collecting)
		b.release(ctx, inst, image)
		b.enter(Done)
		return b.finish(asPhase(err, errors.PhaseResolve, errors.KindMissingExport, "resolve entry point"))
	}

	b.enter(Calling)
	callErr := b.call(ctx, inst, fn)
	if callErr != nil {
		if errors.IsFatal(callErr) {
			b.opts.onFatal(callErr)
		} else {
			Logger().Warn("script failed", zap.Int32("code", errors.CodeOf(callErr)), zap.Error(callErr))
		}
	}

	b.enter(Collecting)
	collectErr := inst.Collect(ctx, true)
	image.Release()

	b.enter(Done)
	if callErr != nil {
		return b.finish(callErr)
	}
	return b.finish(collectErr)
}

func (b *Bridge) call(ctx context.Context, inst scripthost.Instance, fn scripthost.Export) error {
	if b.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.timeout)
		defer cancel()
	}
	err := inst.Call(ctx, fn)
	if err == nil {
		return nil
	}
	return asPhase(err, errors.PhaseCall, errors.KindScriptError, "call entry point")
}

// release tears down an instance that never reached Calling. Collect errors
// are logged; the export error is what the run reports.
func (b *Bridge) release(ctx context.Context, inst scripthost.Instance, image *snapshot.Image) {
	if err := inst.Collect(ctx, true); err != nil {
		Logger().Warn("release VM", zap.Error(err))
	}
	image.Release()
}

// asPhase keeps structured errors from the given phase and wraps anything else.
func asPhase(err error, phase errors.Phase, kind errors.Kind, detail string) error {
	if stderrors.Is(err, &errors.Error{Phase: phase}) {
		return err
	}
	return errors.Wrap(phase, kind, err, detail)
}
