package engine

import (
	"context"
	"slices"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/errors"
)

// GuestModuleName is the name the script module is instantiated under.
const GuestModuleName = "script"

var (
	hostParams  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	hostResults = []api.ValueType{api.ValueTypeI32}
)

// Config holds configuration for restored instances
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CloseOnContextDone stops a running script when the call context is
	// cancelled or its deadline passes.
	CloseOnContextDone bool
}

// Machine restores instances from snapshot images.
type Machine struct {
	cfg Config
}

// NewMachine creates a machine. A nil cfg uses defaults.
func NewMachine(cfg *Config) *Machine {
	m := &Machine{}
	if cfg != nil {
		m.cfg = *cfg
	}
	return m
}

func (m *Machine) runtimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig()
	if m.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(m.cfg.MemoryLimitPages)
	}
	if m.cfg.CloseOnContextDone {
		rc = rc.WithCloseOnContextDone(true)
	}
	return rc
}

type binding struct {
	fn   scripthost.HostFunction
	name string
}

// Restore implements scripthost.Machine. The returned instance keeps image
// until it is fully collected.
func (m *Machine) Restore(ctx context.Context, image []byte, resolver scripthost.ImportResolver) (scripthost.Instance, error) {
	if len(image) == 0 {
		return nil, errors.Restore(errors.KindInvalidImage, "empty snapshot", nil)
	}
	if resolver == nil {
		return nil, errors.InvalidInput(errors.PhaseRestore, "nil import resolver")
	}

	rt := wazero.NewRuntimeWithConfig(ctx, m.runtimeConfig())
	inst, err := m.restore(ctx, rt, image, resolver)
	if err != nil {
		if closeErr := rt.Close(ctx); closeErr != nil {
			Logger().Warn("close runtime after failed restore", zap.Error(closeErr))
		}
		return nil, err
	}
	return inst, nil
}

func (m *Machine) restore(ctx context.Context, rt wazero.Runtime, image []byte, resolver scripthost.ImportResolver) (*Instance, error) {
	compiled, err := rt.CompileModule(ctx, image)
	if err != nil {
		return nil, errors.Restore(errors.KindInvalidImage, "compile snapshot", err)
	}

	bindings, err := resolveImports(compiled, resolver)
	if err != nil {
		return nil, err
	}

	if len(bindings) > 0 {
		builder := rt.NewHostModuleBuilder(scripthost.HostModule)
		for _, b := range bindings {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(hostCall(b.fn), hostParams, hostResults).
				WithName(b.fn.ID().String()).
				Export(b.name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return nil, errors.Restore(errors.KindUnresolvedImport, "bind host functions", err)
		}
	}

	modCfg := wazero.NewModuleConfig().
		WithName(GuestModuleName).
		WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Restore(errors.KindInvalidImage, "instantiate snapshot", err)
	}

	Logger().Debug("snapshot restored",
		zap.Int("size", len(image)),
		zap.Int("imports", len(bindings)))

	return &Instance{rt: rt, mod: mod, image: image}, nil
}

// resolveImports resolves every imported function exactly once.
func resolveImports(compiled wazero.CompiledModule, resolver scripthost.ImportResolver) ([]binding, error) {
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		module, name, _ := mems[0].Import()
		return nil, errors.UnresolvedImport(module, name)
	}

	var bindings []binding
	seen := make(map[string]bool)
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != scripthost.HostModule {
			return nil, errors.UnresolvedImport(module, name)
		}
		id, err := strconv.ParseUint(name, 10, 16)
		if err != nil {
			return nil, errors.UnresolvedImport(module, name)
		}
		if !slices.Equal(def.ParamTypes(), hostParams) || !slices.Equal(def.ResultTypes(), hostResults) {
			return nil, errors.New(errors.PhaseRestore, errors.KindSignatureMismatch).
				Path(module, name).
				Detail("want (i32, i32) -> i32, got %s -> %s",
					typeList(def.ParamTypes()), typeList(def.ResultTypes())).
				Build()
		}
		if seen[name] {
			continue
		}

		fn, err := resolver.ResolveImport(scripthost.ImportID(id))
		if err != nil {
			return nil, errors.New(errors.PhaseRestore, errors.KindUnresolvedImport).
				Path(module, name).
				Cause(err).
				Build()
		}
		seen[name] = true
		bindings = append(bindings, binding{fn: fn, name: name})
	}
	return bindings, nil
}

func typeList(types []api.ValueType) string {
	s := "("
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s + ")"
}

// hostCall adapts a resolved host function to the wazero calling convention.
func hostCall(fn scripthost.HostFunction) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		argv := api.DecodeU32(stack[0])
		argc := api.DecodeU32(stack[1])
		status := fn.Invoke(ctx, wrapMemory(mod.Memory()), argv, argc)
		stack[0] = api.EncodeI32(int32(status))
	}
}
