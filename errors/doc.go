// Package errors provides structured error types for the script host.
//
// Errors are categorized by Phase (storage, restore, resolve, call, ...) and
// Kind (not_found, unresolved_import, script_error, fatal_fault, ...). An
// Error may carry a path, a script status code and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStorage, errors.KindTruncated).
//		Path("script.wasm").
//		Detail("read %d of %d bytes", got, want).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnresolvedImport("mvm", "9")
//	err := errors.Runtime(code, nil)
//
// The predicates IsStorage, IsRestore, IsExport, IsRuntime and IsFatal map
// an error onto the outcome classes the bridge reports.
package errors
