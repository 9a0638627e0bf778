package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseStorage Phase = "storage" // snapshot loading
	PhaseRestore Phase = "restore" // VM restore and import resolution
	PhaseResolve Phase = "resolve" // export lookup
	PhaseCall    Phase = "call"    // entry point execution
	PhaseCollect Phase = "collect" // VM teardown
	PhaseHost    Phase = "host"    // host callback invocation
	PhaseUI      Phase = "ui"      // input queue and dispatcher
	PhaseConfig  Phase = "config"  // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindTruncated         Kind = "truncated"
	KindUnresolvedImport  Kind = "unresolved_import"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindInvalidImage      Kind = "invalid_image"
	KindMissingExport     Kind = "missing_export"
	KindScriptError       Kind = "script_error"
	KindTimeout           Kind = "timeout"
	KindCanceled          Kind = "canceled"
	KindFatalFault        Kind = "fatal_fault"
	KindArity             Kind = "arity"
	KindConversion        Kind = "conversion"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidInput      Kind = "invalid_input"
	KindClosed            Kind = "closed"
)

// Error is the structured error type used throughout the host
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
	Code   int32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Kind on the target matches any kind within the phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Phase != t.Phase {
		return false
	}
	return t.Kind == "" || e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Code sets the VM fault code
func (b *Builder) Code(code int32) *Builder {
	b.err.Code = code
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Taxonomy sentinels, matched with errors.Is by phase.
var (
	ErrStorage = &Error{Phase: PhaseStorage}
	ErrRestore = &Error{Phase: PhaseRestore}
	ErrExport  = &Error{Phase: PhaseResolve}
	ErrRuntime = &Error{Phase: PhaseCall}
	ErrFatal   = &Error{Phase: PhaseCall, Kind: KindFatalFault}
	ErrArity   = &Error{Phase: PhaseHost, Kind: KindArity}
	ErrClosed  = &Error{Phase: PhaseUI, Kind: KindClosed}
)

// Storage creates a snapshot storage error
func Storage(kind Kind, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseStorage,
		Kind:   kind,
		Path:   []string{name},
		Detail: "load snapshot",
		Cause:  cause,
	}
}

// Truncated creates a short read error
func Truncated(name string, want, got int) *Error {
	return &Error{
		Phase:  PhaseStorage,
		Kind:   KindTruncated,
		Path:   []string{name},
		Detail: fmt.Sprintf("read %d of %d bytes", got, want),
	}
}

// Restore creates a restore error
func Restore(kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseRestore,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedImport creates an error for an import the host does not provide
func UnresolvedImport(module, name string) *Error {
	return &Error{
		Phase:  PhaseRestore,
		Kind:   KindUnresolvedImport,
		Path:   []string{module, name},
		Detail: "host does not provide this import",
	}
}

// MissingExport creates an error for an absent entry point
func MissingExport(id uint16, detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindMissingExport,
		Path:   []string{fmt.Sprintf("%d", id)},
		Detail: detail,
	}
}

// Runtime creates a script error carrying the VM fault code
func Runtime(code int32, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindScriptError,
		Code:   code,
		Detail: "script raised an error",
		Cause:  cause,
	}
}

// Canceled creates an error for a script call stopped because its context
// was cancelled.
func Canceled(cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCanceled,
		Detail: "script call canceled",
		Cause:  cause,
	}
}

// Timeout creates a script timeout error
func Timeout(code int32, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTimeout,
		Code:   code,
		Detail: "script exceeded its time budget",
		Cause:  cause,
	}
}

// Fatal creates an unrecoverable VM fault
func Fatal(cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindFatalFault,
		Detail: "VM heap or invariant violation",
		Cause:  cause,
	}
}

// Arity creates a host callback arity error
func Arity(fn string, want, got uint32) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindArity,
		Path:   []string{fn},
		Detail: fmt.Sprintf("expected %d argument(s), got %d", want, got),
	}
}

// Conversion creates a host callback argument conversion error
func Conversion(fn string, index int, detail string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindConversion,
		Path:   []string{fn, fmt.Sprintf("arg%d", index)},
		Detail: detail,
	}
}

// OutOfBounds creates a guest memory access error
func OutOfBounds(phase Phase, path []string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset=%d length=%d", offset, length),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsStorage reports whether err is a snapshot storage error.
func IsStorage(err error) bool { return stderrors.Is(err, ErrStorage) }

// IsRestore reports whether err is a restore error.
func IsRestore(err error) bool { return stderrors.Is(err, ErrRestore) }

// IsExport reports whether err is an export resolution error.
func IsExport(err error) bool { return stderrors.Is(err, ErrExport) }

// IsRuntime reports whether err is a script-level error (not a fatal fault).
func IsRuntime(err error) bool {
	return stderrors.Is(err, ErrRuntime) && !stderrors.Is(err, ErrFatal)
}

// IsFatal reports whether err is an unrecoverable VM fault.
func IsFatal(err error) bool { return stderrors.Is(err, ErrFatal) }

// CodeOf returns the VM fault code carried by err, or 0.
func CodeOf(err error) int32 {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 0
}
