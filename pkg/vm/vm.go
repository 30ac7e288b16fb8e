// Package vm executes compiled S bytecode. The machine is a
// deterministic, single-threaded stack VM: an evaluation stack of
// int32 values, a call stack of frames, and per-function local slot
// arrays. Strings never enter the evaluation stack; PRINT_STR indexes
// the program's string pool directly.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"scc/pkg/bytecode"
)

// frame captures the caller state a RET unwinds back to.
type frame struct {
	funcIndex int
	ip        int
	locals    []int32
}

// VM is a reusable bytecode interpreter. Run resets all execution
// state, so one VM can execute several programs in sequence.
type VM struct {
	// Output is where PRINT and PRINT_STR write.
	// If nil, os.Stdout is used.
	Output io.Writer

	stack     []int32
	callStack []frame
}

func NewVM() *VM {
	return &VM{}
}

func (vm *VM) outputSink() io.Writer {
	if vm.Output != nil {
		return vm.Output
	}
	return os.Stdout
}

func (vm *VM) push(v int32) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (int32, error) {
	if len(vm.stack) == 0 {
		return 0, fmt.Errorf("Stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// pop2 pops the right then the left operand of a binary instruction.
func (vm *VM) pop2() (a, b int32, err error) {
	if b, err = vm.pop(); err != nil {
		return
	}
	a, err = vm.pop()
	return
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Run executes program starting at the entry function and returns the
// S program's exit value. Any failure aborts execution with an error;
// the machine state is discarded either way.
func (vm *VM) Run(program *bytecode.Program, entry int) (int32, error) {
	if entry < 0 || entry >= len(program.Functions) {
		return 0, fmt.Errorf("Invalid entry function")
	}

	out := vm.outputSink()
	vm.stack = vm.stack[:0]
	vm.callStack = vm.callStack[:0]

	funcIndex := entry
	ip := 0
	locals := make([]int32, program.Functions[funcIndex].NumLocals)

	for {
		fn := &program.Functions[funcIndex]
		code := fn.Code
		if ip < 0 || ip >= len(code) {
			return 0, fmt.Errorf("Instruction pointer out of range in function %s", fn.Name)
		}
		op := bytecode.Op(code[ip])
		ip++
		// Inline operands live in the same code stream; fetch checks
		// the remaining length before reading them.
		fetch := func() (int32, error) {
			if ip >= len(code) {
				return 0, fmt.Errorf("Instruction pointer out of range in function %s", fn.Name)
			}
			w := code[ip]
			ip++
			return w, nil
		}

		switch op {
		case bytecode.OpPushInt:
			v, err := fetch()
			if err != nil {
				return 0, err
			}
			vm.push(v)

		case bytecode.OpLoad:
			idx, err := fetch()
			if err != nil {
				return 0, err
			}
			if idx < 0 || int(idx) >= len(locals) {
				return 0, fmt.Errorf("Local index out of range")
			}
			vm.push(locals[idx])

		case bytecode.OpStore:
			idx, err := fetch()
			if err != nil {
				return 0, err
			}
			if idx < 0 || int(idx) >= len(locals) {
				return 0, fmt.Errorf("Local index out of range")
			}
			v, err := vm.pop()
			if err != nil {
				return 0, err
			}
			locals[idx] = v

		case bytecode.OpAdd:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(a + b)

		case bytecode.OpSub:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(a - b)

		case bytecode.OpMul:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(a * b)

		case bytecode.OpDiv:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			if b == 0 {
				return 0, fmt.Errorf("Division by zero")
			}
			// MinInt32 / -1 overflows; wrap instead of trapping.
			if a == math.MinInt32 && b == -1 {
				vm.push(math.MinInt32)
			} else {
				vm.push(a / b)
			}

		case bytecode.OpEq:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(boolToInt32(a == b))

		case bytecode.OpNe:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(boolToInt32(a != b))

		case bytecode.OpLt:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(boolToInt32(a < b))

		case bytecode.OpLe:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(boolToInt32(a <= b))

		case bytecode.OpGt:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(boolToInt32(a > b))

		case bytecode.OpGe:
			a, b, err := vm.pop2()
			if err != nil {
				return 0, err
			}
			vm.push(boolToInt32(a >= b))

		case bytecode.OpJmp:
			target, err := fetch()
			if err != nil {
				return 0, err
			}
			ip = int(target)

		case bytecode.OpJmpIfFalse:
			target, err := fetch()
			if err != nil {
				return 0, err
			}
			cond, err := vm.pop()
			if err != nil {
				return 0, err
			}
			if cond == 0 {
				ip = int(target)
			}

		case bytecode.OpCall:
			callee, err := fetch()
			if err != nil {
				return 0, err
			}
			argCount, err := fetch()
			if err != nil {
				return 0, err
			}
			if callee < 0 || int(callee) >= len(program.Functions) {
				return 0, fmt.Errorf("Function index out of range")
			}
			target := &program.Functions[callee]
			if int(argCount) != target.NumParams {
				return 0, fmt.Errorf("Call arity mismatch")
			}

			newLocals := make([]int32, target.NumLocals)
			for i := int(argCount) - 1; i >= 0; i-- {
				v, err := vm.pop()
				if err != nil {
					return 0, err
				}
				newLocals[i] = v
			}

			vm.callStack = append(vm.callStack, frame{funcIndex: funcIndex, ip: ip, locals: locals})
			funcIndex = int(callee)
			ip = 0
			locals = newLocals

		case bytecode.OpRet:
			ret, err := vm.pop()
			if err != nil {
				return 0, err
			}
			if len(vm.callStack) == 0 {
				return ret, nil
			}
			fr := vm.callStack[len(vm.callStack)-1]
			vm.callStack = vm.callStack[:len(vm.callStack)-1]
			funcIndex = fr.funcIndex
			ip = fr.ip
			locals = fr.locals
			vm.push(ret)

		case bytecode.OpPrint:
			v, err := vm.pop()
			if err != nil {
				return 0, err
			}
			fmt.Fprintf(out, "%d\n", v)

		case bytecode.OpPrintStr:
			idx, err := fetch()
			if err != nil {
				return 0, err
			}
			if idx < 0 || int(idx) >= len(program.Strings) {
				return 0, fmt.Errorf("String index out of range")
			}
			fmt.Fprintf(out, "%s\n", program.Strings[idx])

		case bytecode.OpPop:
			if _, err := vm.pop(); err != nil {
				return 0, err
			}

		default:
			return 0, fmt.Errorf("Unknown opcode")
		}
	}
}

// Run executes program with a fresh VM writing to stdout.
func Run(program *bytecode.Program, entry int) (int32, error) {
	return NewVM().Run(program, entry)
}
