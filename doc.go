// Package scripthost runs precompiled script snapshots inside an embedded
// WebAssembly VM and shows their console output on a small display.
//
// # Architecture Overview
//
//	scripthost/          Root package with the VM, host function and memory contracts
//	├── snapshot/        Snapshot loading from storage and snapshot assembly
//	├── host/            Host function table (console.clear, console.log, ...)
//	├── console/         Shared console buffer read by the renderer
//	├── engine/          wazero implementation of Machine and Instance
//	├── bridge/          Restore, resolve, call, collect state machine
//	├── ui/              Input queue, view dispatcher and renderers
//	├── app/             Scheduling, teardown and the terminal display
//	├── config/          TOML configuration
//	└── errors/          Structured error types
//
// # Script ABI
//
// A snapshot is a core wasm module. Host functions are imported from the "mvm"
// module under their decimal id and share one signature:
//
//	(import "mvm" "2" (func $log (param $argv i32) (param $argc i32) (result i32)))
//
// argv points at argc 12-byte value records {tag, a, b}. Tag 1 is a UTF-8
// string (ptr, len), tag 2 an int32 in a, tag 3 a UTF-16LE string (ptr, bytes).
// The entry point is exported under its decimal id ("1") and returns an i32
// status; a non-zero status is reported as a script error.
//
// # Quick Start
//
//	sink := console.New(logger)
//	table := host.NewTable(sink, logger)
//	img, err := snapshot.Load(os.DirFS(root), snapshot.DefaultName)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b := bridge.New(engine.NewMachine(nil), table)
//	if err := b.Run(ctx, img); err != nil {
//	    log.Print(err)
//	}
//	fmt.Print(sink.Snapshot().Text)
//
// # Thread Safety
//
// console.Sink, ui.Queue and ui.Dispatcher are safe for concurrent use.
// A bridge and the instance it restores belong to a single goroutine.
package scripthost
