package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/wippyai/scripthost/snapshot"
)

func main() {
	var (
		in  = flag.String("in", "", "Console script to assemble (default: stdin)")
		out = flag.String("o", snapshot.DefaultName, "Output snapshot file")
	)
	flag.Parse()

	if err := run(*in, *out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out string) error {
	var r io.Reader = os.Stdin
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		r = f
	}

	b, err := snapshot.ParseScript(r)
	if err != nil {
		return err
	}

	data := b.Bytes()
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", out, len(data))
	return nil
}
