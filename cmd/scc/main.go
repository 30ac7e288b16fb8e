// scc is the S compiler driver.
//
//	scc <file.s> -o <out.exe> [--arch x64|x86]
//	scc --run <file.s>
//	scc --dump <file.s>
package main

import (
	"fmt"
	"os"

	"scc/pkg/bytecode"
	"scc/pkg/compiler"
	"scc/pkg/pack"
	"scc/pkg/payload"
	"scc/pkg/runtimes"
	"scc/pkg/utils"
	"scc/pkg/vm"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: scc <file.s> -o <out.exe> [--arch x64|x86]")
	fmt.Fprintln(os.Stderr, "   or: scc --run <file.s>")
	fmt.Fprintln(os.Stderr, "   or: scc --dump <file.s>")
}

type options struct {
	runMode  bool
	dumpMode bool
	arch     string
	input    string
	output   string
}

func parseArgs(args []string) (options, error) {
	var opts options
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--run":
			opts.runMode = true
		case "--dump":
			opts.dumpMode = true
		case "--arch":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("expected --arch x64|x86")
			}
			i++
			opts.arch = args[i]
		case "-o":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("expected output path after -o")
			}
			i++
			opts.output = args[i]
		default:
			if opts.input != "" {
				return opts, fmt.Errorf("unexpected argument: %s", args[i])
			}
			opts.input = args[i]
		}
	}
	if opts.input == "" {
		return opts, fmt.Errorf("missing input file")
	}
	return opts, nil
}

func run(args []string) (int, error) {
	opts, err := parseArgs(args)
	if err != nil {
		return 1, err
	}

	fullPath, _, err := utils.GetPathInfo(opts.input)
	if err != nil {
		return 1, fmt.Errorf("failed to open %s", opts.input)
	}
	src, err := os.ReadFile(fullPath)
	if err != nil {
		return 1, fmt.Errorf("failed to open %s", opts.input)
	}

	program, err := compiler.Compile(string(src))
	if err != nil {
		return 1, err
	}
	entry, err := compiler.ResolveEntry(program)
	if err != nil {
		return 1, err
	}

	if opts.dumpMode {
		dump, err := bytecode.DumpString(program, entry)
		if err != nil {
			return 1, err
		}
		fmt.Print(dump)
		return 0, nil
	}

	if opts.runMode {
		code, err := vm.Run(program, entry)
		if err != nil {
			return 1, err
		}
		return int(code), nil
	}

	if opts.output == "" {
		return 1, fmt.Errorf("usage: scc <file.s> -o <out.exe> [--arch x64|x86]")
	}

	arch := opts.arch
	if arch == "" {
		arch = runtimes.DetectArch()
		fmt.Printf("--arch not given, using detected host architecture %q\n", arch)
	} else {
		fmt.Printf("Using --arch %q runtime\n", arch)
	}

	image, err := runtimes.For(arch)
	if err != nil {
		return 1, err
	}
	bytes := payload.Encode(program, entry)
	if err := (pack.Trailer{}).Attach(image, bytes, opts.output); err != nil {
		return 1, err
	}
	return 0, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}
