package compiler

import (
	"reflect"
	"strings"
	"testing"

	"scc/pkg/bytecode"
)

func compileOne(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	program, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return program
}

func TestCodegenReturnConstant(t *testing.T) {
	program := compileOne(t, "int main() { return 0; }")
	if len(program.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(program.Functions))
	}
	fn := program.Functions[0]
	if fn.Name != "main" || fn.NumParams != 0 || fn.NumLocals != 0 {
		t.Errorf("unexpected function header: %+v", fn)
	}
	expected := []int32{
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
		// implicit tail
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(fn.Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", fn.Code, expected)
	}
}

func TestCodegenPrecedence(t *testing.T) {
	program := compileOne(t, "int main() { return 2 + 3 * 4; }")
	expected := []int32{
		int32(bytecode.OpPushInt), 2,
		int32(bytecode.OpPushInt), 3,
		int32(bytecode.OpPushInt), 4,
		int32(bytecode.OpMul),
		int32(bytecode.OpAdd),
		int32(bytecode.OpRet),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(program.Functions[0].Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", program.Functions[0].Code, expected)
	}
}

func TestCodegenLocals(t *testing.T) {
	program := compileOne(t, "int main() { int x = 5; return x; }")
	fn := program.Functions[0]
	if fn.NumParams != 0 || fn.NumLocals != 1 {
		t.Fatalf("expected 0 params / 1 local, got %d / %d", fn.NumParams, fn.NumLocals)
	}
	expected := []int32{
		int32(bytecode.OpPushInt), 5,
		int32(bytecode.OpStore), 0,
		int32(bytecode.OpLoad), 0,
		int32(bytecode.OpRet),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(fn.Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", fn.Code, expected)
	}
}

func TestCodegenParamsGetLowSlots(t *testing.T) {
	program := compileOne(t, "int add(int a, int b) { int c = a + b; return c; }")
	fn := program.Functions[0]
	if fn.NumParams != 2 || fn.NumLocals != 3 {
		t.Fatalf("expected 2 params / 3 locals, got %d / %d", fn.NumParams, fn.NumLocals)
	}
	expected := []int32{
		int32(bytecode.OpLoad), 0,
		int32(bytecode.OpLoad), 1,
		int32(bytecode.OpAdd),
		int32(bytecode.OpStore), 2,
		int32(bytecode.OpLoad), 2,
		int32(bytecode.OpRet),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(fn.Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", fn.Code, expected)
	}
}

func TestCodegenIfElseBackpatch(t *testing.T) {
	program := compileOne(t, "int main() { if (1) return 2; else return 3; }")
	expected := []int32{
		int32(bytecode.OpPushInt), 1,
		int32(bytecode.OpJmpIfFalse), 9,
		int32(bytecode.OpPushInt), 2,
		int32(bytecode.OpRet),
		int32(bytecode.OpJmp), 12,
		int32(bytecode.OpPushInt), 3,
		int32(bytecode.OpRet),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(program.Functions[0].Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", program.Functions[0].Code, expected)
	}
}

func TestCodegenWhileBackpatch(t *testing.T) {
	program := compileOne(t, "int main() { int i = 0; while (i < 3) i = i + 1; return i; }")
	expected := []int32{
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpStore), 0,
		int32(bytecode.OpLoad), 0, // loop start: offset 4
		int32(bytecode.OpPushInt), 3,
		int32(bytecode.OpLt),
		int32(bytecode.OpJmpIfFalse), 20,
		int32(bytecode.OpLoad), 0,
		int32(bytecode.OpPushInt), 1,
		int32(bytecode.OpAdd),
		int32(bytecode.OpStore), 0,
		int32(bytecode.OpJmp), 4,
		int32(bytecode.OpLoad), 0, // offset 20
		int32(bytecode.OpRet),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(program.Functions[0].Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", program.Functions[0].Code, expected)
	}
}

func TestCodegenUnaryMinus(t *testing.T) {
	program := compileOne(t, "int main() { int x = 1; return -x; }")
	expected := []int32{
		int32(bytecode.OpPushInt), 1,
		int32(bytecode.OpStore), 0,
		int32(bytecode.OpLoad), 0,
		int32(bytecode.OpPushInt), -1,
		int32(bytecode.OpMul),
		int32(bytecode.OpRet),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(program.Functions[0].Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", program.Functions[0].Code, expected)
	}
}

func TestCodegenForwardCallResolved(t *testing.T) {
	program := compileOne(t, `
int main() { return add(1, 2); }
int add(int a, int b) { return a + b; }
`)
	if len(program.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(program.Functions))
	}
	expected := []int32{
		int32(bytecode.OpPushInt), 1,
		int32(bytecode.OpPushInt), 2,
		int32(bytecode.OpCall), 1, 2, // callee index 1, 2 args
		int32(bytecode.OpRet),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(program.Functions[0].Code, expected) {
		t.Errorf("main code:\n got  %v\n want %v", program.Functions[0].Code, expected)
	}
}

func TestCodegenPrintForms(t *testing.T) {
	program := compileOne(t, `int main() { print("hi"); print(42); print("hi"); }`)
	if !reflect.DeepEqual(program.Strings, []string{"hi"}) {
		t.Errorf("expected interned string pool [hi], got %v", program.Strings)
	}
	expected := []int32{
		int32(bytecode.OpPrintStr), 0,
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpPop),
		int32(bytecode.OpPushInt), 42,
		int32(bytecode.OpPrint),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpPop),
		int32(bytecode.OpPrintStr), 0,
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpPop),
		int32(bytecode.OpPushInt), 0,
		int32(bytecode.OpRet),
	}
	if !reflect.DeepEqual(program.Functions[0].Code, expected) {
		t.Errorf("code:\n got  %v\n want %v", program.Functions[0].Code, expected)
	}
}

func TestStringInterningAcrossFunctions(t *testing.T) {
	program := compileOne(t, `
int a() { print("x"); print("y"); return 0; }
int main() { print("y"); print("x"); return a(); }
`)
	if !reflect.DeepEqual(program.Strings, []string{"x", "y"}) {
		t.Errorf("expected pool [x y], got %v", program.Strings)
	}
}

// Every produced function must end with the implicit PUSH_INT 0; RET.
func TestImplicitReturnAlwaysAppended(t *testing.T) {
	program := compileOne(t, `
int noret() { int x = 1; }
int main() { return noret(); }
`)
	for _, fn := range program.Functions {
		n := len(fn.Code)
		if n < 3 {
			t.Fatalf("%s: code too short: %v", fn.Name, fn.Code)
		}
		tail := fn.Code[n-3:]
		expected := []int32{int32(bytecode.OpPushInt), 0, int32(bytecode.OpRet)}
		if !reflect.DeepEqual(tail, expected) {
			t.Errorf("%s: expected implicit return tail, got %v", fn.Name, tail)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"Redeclaration", "int main() { int x; int x; }", "variable already defined: x"},
		{"Unknown variable", "int main() { return y; }", "unknown variable: y"},
		{"Unknown assignment target", "int main() { y = 1; }", "unknown variable: y"},
		{"Duplicate function", "int f() { return 0; } int f() { return 1; }", "function already defined: f"},
		{"String outside print", `int main() { int x = "s"; }`, "string literals are only allowed in print(...)"},
		{"String as call argument", `int f(int a) { return a; } int main() { return f("s"); }`, "string literals are only allowed in print(...)"},
		{"Empty print", "int main() { print(); }", "print expects 1 argument"},
		{"Unknown callee", "int main() { return g(); }", "unknown function: g"},
		{"Arity mismatch", "int f(int a) { return a; } int main() { return f(1, 2); }", "function f expects 1 args, got 2"},
		{"Missing semicolon", "int main() { return 0 }", "expected ';'"},
		{"Missing close brace", "int main() { return 0;", "expected '}'"},
		{"Missing paren", "int main() { return (1; }", "expected ')'"},
		{"Top level junk", "return 0;", "expected 'int'"},
		{"Missing function name", "int () { return 0; }", "expected function name"},
		{"Bad expression", "int main() { return +; }", "expected expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			if err == nil {
				t.Fatalf("expected error for %q", tt.src)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseErrorsCarryPosition(t *testing.T) {
	_, err := Compile("int main() {\n  return @;\n}")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "2:10:") {
		t.Errorf("expected position 2:10:, got %q", err.Error())
	}
}

func TestResolveEntry(t *testing.T) {
	program := compileOne(t, "int helper() { return 1; } int main() { return 0; }")
	entry, err := ResolveEntry(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != 1 {
		t.Errorf("expected entry 1, got %d", entry)
	}

	program = compileOne(t, "int helper() { return 1; }")
	if _, err := ResolveEntry(program); err == nil || !strings.Contains(err.Error(), "no main function") {
		t.Errorf("expected missing-main error, got %v", err)
	}

	program = compileOne(t, "int main(int a) { return a; }")
	if _, err := ResolveEntry(program); err == nil || !strings.Contains(err.Error(), "0 parameters") {
		t.Errorf("expected arity error, got %v", err)
	}
}
