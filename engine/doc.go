// Package engine runs script snapshots on wazero.
//
// Each restored Instance owns a private wazero.Runtime, so collecting an
// instance releases every byte of VM memory it allocated:
//
//	Machine   - restores instances from snapshot images
//	Instance  - a restored snapshot; resolves exports, calls them, collects
//
// # Restore Flow
//
//  1. The image is compiled. Compilation failures are restore errors.
//  2. Every imported function is resolved once through the ImportResolver.
//     Imports outside the "mvm" module, non-numeric names, unknown ids and
//     signatures other than (i32, i32) -> i32 fail the restore.
//  3. The resolved callbacks are bound into an "mvm" host module.
//  4. The guest is instantiated without running any start function.
//
// # Faults
//
// Call separates ordinary script errors from faults that leave the VM heap in
// an unknown state:
//
//	non-zero i32 result           script error carrying that code
//	unreachable, divide by zero   script error (StatusUncaught)
//	context deadline/cancel       timeout (StatusTimeout)
//	memory, table or stack fault  fatal fault
//	anything else                 fatal fault
package engine
