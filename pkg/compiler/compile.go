// Package compiler provides the S language front end: a byte-stream
// lexer and a recursive-descent parser that emits stack-machine
// bytecode directly, with forward-referenced calls resolved after the
// whole unit has been parsed.
//
// Pipeline: S source → Lex → Parse/CodeGen → bytecode.Program
package compiler

import (
	"fmt"

	"scc/pkg/bytecode"
)

// Compile parses src into a ready-to-run Program.
func Compile(src string) (*bytecode.Program, error) {
	p, err := NewParser(src)
	if err != nil {
		return nil, err
	}
	return p.Compile()
}

// ResolveEntry locates the program's entry function: it must be named
// "main" and take zero parameters.
func ResolveEntry(program *bytecode.Program) (int, error) {
	idx := program.FindFunction("main")
	if idx < 0 {
		return 0, fmt.Errorf("no main function found")
	}
	if program.Functions[idx].NumParams != 0 {
		return 0, fmt.Errorf("main must take 0 parameters")
	}
	return idx, nil
}
