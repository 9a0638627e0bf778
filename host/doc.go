// Package host implements the functions a script can import.
//
// The set is closed: console.clear (1), console.log (2), console.warn (3) and
// console.logAt (4). Table.ResolveImport hands each one out as a Function, a
// tagged value that dispatches on its Kind when the VM invokes it.
//
// # Argument ABI
//
// Every host function has the wasm signature (argv i32, argc i32) -> i32.
// argv addresses argc little-endian records of 12 bytes:
//
//	offset 0  tag  1 = UTF-8 string, 2 = int32, 3 = UTF-16LE string
//	offset 4  a    string pointer, or the int32 value
//	offset 8  b    string length in bytes
//
// Arity and type violations are logged and reported to the script as a
// non-zero status; the console is left untouched by a rejected call.
package host
