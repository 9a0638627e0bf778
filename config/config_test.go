package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/scripthost/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestDecode(t *testing.T) {
	src := `
storage_root = "/data"
snapshot = "demo.wasm"
mode = "worker"
queue_capacity = 16
memory_limit_pages = 4
script_timeout = "2s"

[display]
width = 40
height = 12

[log]
level = "debug"
file = "/tmp/host.log"
development = true
`
	c, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := Config{
		StorageRoot:      "/data",
		Snapshot:         "demo.wasm",
		Mode:             "worker",
		QueueCapacity:    16,
		MemoryLimitPages: 4,
		ScriptTimeout:    2 * time.Second,
		Display:          Display{Width: 40, Height: 12},
		Log:              Log{Level: "debug", File: "/tmp/host.log", Development: true},
	}
	if *c != want {
		t.Errorf("Decode = %+v\nwant %+v", *c, want)
	}
}

func TestDecodeKeepsDefaults(t *testing.T) {
	c, err := Decode(strings.NewReader(`mode = "worker"`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	d := Default()
	if c.Snapshot != d.Snapshot || c.QueueCapacity != d.QueueCapacity || c.Display != d.Display {
		t.Errorf("defaults lost: %+v", c)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `mode = `},
		{"unknown key", `colour = "red"`},
		{"bad mode", `mode = "threads"`},
		{"empty snapshot", `snapshot = ""`},
		{"negative queue", `queue_capacity = -1`},
		{"negative timeout", `script_timeout = "-1s"`},
		{"bad level", "[log]\nlevel = \"loud\""},
		{"negative display", "[display]\nwidth = -2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !asError(err, &e) || e.Phase != errors.PhaseConfig {
				t.Errorf("error = %v, want config phase", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("storage_root = \"snaps\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(dir, "snaps"); c.StorageRoot != want {
		t.Errorf("StorageRoot = %q, want %q", c.StorageRoot, want)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}
