// srt is the S runtime image. A packaged executable is this binary
// with a bytecode payload attached; on start it extracts the payload
// from itself, decodes the program, and runs the VM. The process exit
// code is the S program's return value.
package main

import (
	"fmt"
	"os"

	"scc/pkg/pack"
	"scc/pkg/payload"
	"scc/pkg/vm"
)

func run() (int, error) {
	data, err := (pack.Trailer{}).ExtractSelf()
	if err != nil {
		return 1, err
	}
	program, entry, err := payload.Decode(data)
	if err != nil {
		return 1, err
	}
	code, err := vm.Run(program, entry)
	if err != nil {
		return 1, err
	}
	return int(code), nil
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}
