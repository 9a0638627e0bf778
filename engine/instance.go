package engine

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/errors"
)

// Instance is a restored snapshot. It is not safe for concurrent use.
type Instance struct {
	rt        wazero.Runtime
	mod       api.Module
	image     []byte
	collected bool
}

type export struct {
	fn        api.Function
	id        scripthost.ExportID
	hasResult bool
}

func (e *export) ID() scripthost.ExportID { return e.id }

// Image returns the borrowed snapshot bytes, or nil once fully collected.
func (i *Instance) Image() []byte { return i.image }

// ResolveExport looks up the entry point exported under id. It must take no
// parameters and return nothing or a single i32 status.
func (i *Instance) ResolveExport(id scripthost.ExportID) (scripthost.Export, error) {
	if i.mod == nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindClosed).Detail("instance collected").Build()
	}

	name := strconv.Itoa(int(id))
	def, ok := i.mod.ExportedFunctionDefinitions()[name]
	if !ok {
		return nil, errors.MissingExport(uint16(id), "snapshot does not export the entry point")
	}
	results := def.ResultTypes()
	if len(def.ParamTypes()) != 0 || len(results) > 1 || (len(results) == 1 && results[0] != api.ValueTypeI32) {
		return nil, errors.MissingExport(uint16(id), "entry point must have signature () -> i32 or () -> ()")
	}

	return &export{
		fn:        i.mod.ExportedFunction(name),
		id:        id,
		hasResult: len(results) == 1,
	}, nil
}

// Call invokes fn with no arguments.
func (i *Instance) Call(ctx context.Context, fn scripthost.Export) error {
	e, ok := fn.(*export)
	if !ok || e.fn == nil {
		return errors.InvalidInput(errors.PhaseCall, "export was not resolved by this instance")
	}
	if i.mod == nil {
		return errors.New(errors.PhaseCall, errors.KindClosed).Detail("instance collected").Build()
	}

	res, err := e.fn.Call(ctx)
	if err != nil {
		return classify(ctx, err)
	}
	if e.hasResult && len(res) == 1 {
		if code := api.DecodeI32(res[0]); code != 0 {
			return errors.Runtime(code, nil)
		}
	}
	return nil
}

// Collect releases the guest module. With full set it also closes the
// runtime and drops the borrowed image. Repeated calls are no-ops.
func (i *Instance) Collect(ctx context.Context, full bool) error {
	var first error
	if i.mod != nil {
		if err := i.mod.Close(ctx); err != nil {
			first = err
		}
		i.mod = nil
	}
	if full && !i.collected {
		if err := i.rt.Close(ctx); err != nil && first == nil {
			first = err
		}
		i.image = nil
		i.collected = true
	}
	if first != nil {
		Logger().Warn("collect", zap.Bool("full", full), zap.Error(first))
		return errors.Wrap(errors.PhaseCollect, errors.KindInvalidInput, first, "release VM memory")
	}
	return nil
}

// Trap messages that mean the VM heap, table or stack can no longer be trusted.
var fatalTraps = []string{
	"out of bounds memory access",
	"stack overflow",
	"invalid table access",
	"indirect call type mismatch",
}

// Trap messages for faults a script can raise on its own.
var scriptTraps = []string{
	"unreachable",
	"integer divide by zero",
	"integer overflow",
	"invalid conversion to integer",
}

func classify(ctx context.Context, err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		switch exit.ExitCode() {
		case sys.ExitCodeDeadlineExceeded:
			return errors.Timeout(int32(scripthost.StatusTimeout), err)
		case sys.ExitCodeContextCanceled:
			return errors.Canceled(err)
		}
		return errors.Runtime(int32(exit.ExitCode()), err)
	}
	switch ctx.Err() {
	case nil:
	case context.DeadlineExceeded:
		return errors.Timeout(int32(scripthost.StatusTimeout), err)
	default:
		return errors.Canceled(err)
	}

	msg := err.Error()
	for _, t := range fatalTraps {
		if strings.Contains(msg, t) {
			return errors.Fatal(err)
		}
	}
	for _, t := range scriptTraps {
		if strings.Contains(msg, t) {
			return errors.Runtime(int32(scripthost.StatusUncaught), err)
		}
	}
	return errors.Fatal(err)
}
