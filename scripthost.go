package scripthost

import (
	"context"
	"strconv"
)

// ImportID identifies a host function a script can call.
type ImportID uint16

const (
	ImportClear ImportID = 1
	ImportLog   ImportID = 2
	ImportWarn  ImportID = 3
	ImportLogAt ImportID = 4
)

func (id ImportID) String() string {
	switch id {
	case ImportClear:
		return "console.clear"
	case ImportLog:
		return "console.log"
	case ImportWarn:
		return "console.warn"
	case ImportLogAt:
		return "console.logAt"
	}
	return "import#" + strconv.Itoa(int(id))
}

// ExportID identifies an entry point exported by a script.
type ExportID uint16

const (
	ExportInit ExportID = 1
	ExportMain ExportID = 2
)

// HostModule is the wasm import module every host function lives in.
const HostModule = "mvm"

// Status is the result code a host function hands back to the VM.
// Zero means success; a script propagates any other value as a thrown error.
type Status int32

const (
	StatusOK Status = iota
	StatusArity
	StatusType
	StatusMemory
	StatusUnresolvedImport
	StatusUncaught
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusArity:
		return "arity"
	case StatusType:
		return "type"
	case StatusMemory:
		return "memory"
	case StatusUnresolvedImport:
		return "unresolved_import"
	case StatusUncaught:
		return "uncaught"
	case StatusTimeout:
		return "timeout"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Memory is a bounds-checked view of guest linear memory.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	ReadU32(offset uint32) (uint32, error)
}

// HostFunction is a native callback resolved for one import.
// Invoke must return on every path; it never waits on UI state.
type HostFunction interface {
	ID() ImportID
	Invoke(ctx context.Context, mem Memory, argv, argc uint32) Status
}

// ImportResolver maps import ids to host functions. It is consulted once per
// import while a VM is restored.
type ImportResolver interface {
	ResolveImport(id ImportID) (HostFunction, error)
}

// Export is a callable entry point resolved from a restored instance.
type Export interface {
	ID() ExportID
}

// Machine restores VM instances from snapshot images.
type Machine interface {
	Restore(ctx context.Context, image []byte, resolver ImportResolver) (Instance, error)
}

// Instance is a restored VM. It borrows the image it was restored from until
// Collect(ctx, true) returns.
type Instance interface {
	ResolveExport(id ExportID) (Export, error)
	Call(ctx context.Context, fn Export) error
	Collect(ctx context.Context, full bool) error
	Image() []byte
}
