package bytecode

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes a readable assembly-style dump of fn to w.
// Each line is "offset: MNEMONIC operands". A PRINT_STR operand is
// annotated with the pooled string when pool is non-nil.
func Disassemble(w io.Writer, fn *Function, pool []string) error {
	fmt.Fprintf(w, "func %s (params=%d, locals=%d)\n", fn.Name, fn.NumParams, fn.NumLocals)
	ip := 0
	for ip < len(fn.Code) {
		op := Op(fn.Code[ip])
		if !op.Valid() {
			return fmt.Errorf("offset %d: unknown opcode %d", ip, fn.Code[ip])
		}
		n := op.OperandCount()
		if ip+1+n > len(fn.Code) {
			return fmt.Errorf("offset %d: truncated %s", ip, op)
		}
		fmt.Fprintf(w, "  %4d: %s", ip, op)
		for i := 0; i < n; i++ {
			fmt.Fprintf(w, " %d", fn.Code[ip+1+i])
		}
		if op == OpPrintStr && pool != nil {
			idx := int(fn.Code[ip+1])
			if idx >= 0 && idx < len(pool) {
				fmt.Fprintf(w, "  ; %q", pool[idx])
			}
		}
		fmt.Fprintln(w)
		ip += 1 + n
	}
	return nil
}

// DisassembleProgram dumps the string pool and every function in p.
func DisassembleProgram(w io.Writer, p *Program, entry int) error {
	fmt.Fprintf(w, "strings: %d, functions: %d, entry: %d\n", len(p.Strings), len(p.Functions), entry)
	for i, s := range p.Strings {
		fmt.Fprintf(w, "  str %d: %q\n", i, s)
	}
	for i := range p.Functions {
		if err := Disassemble(w, &p.Functions[i], p.Strings); err != nil {
			return fmt.Errorf("function %s: %v", p.Functions[i].Name, err)
		}
	}
	return nil
}

// DumpString returns the disassembly of p as a string, for tests and
// the driver's --dump mode.
func DumpString(p *Program, entry int) (string, error) {
	var sb strings.Builder
	if err := DisassembleProgram(&sb, p, entry); err != nil {
		return "", err
	}
	return sb.String(), nil
}
