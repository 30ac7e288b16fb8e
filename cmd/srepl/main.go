// srepl is a line REPL for S. Each input line is wrapped into a main
// function, written to a temp file, and executed via the scc compiler
// found next to this binary. A failing line prints "(error)" and the
// loop continues.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"scc/pkg/runtimes"
)

// findCompiler locates the scc binary next to the running executable.
func findCompiler() (string, error) {
	exeDir, err := runtimes.ExeDir()
	if err != nil {
		return "", err
	}
	for _, name := range []string{"scc", "scc.exe"} {
		p := filepath.Join(exeDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("scc not found next to srepl")
}

// writeTempProgram wraps one REPL line into a full program.
func writeTempProgram(line string) (string, error) {
	f, err := os.CreateTemp("", "srepl_*.s")
	if err != nil {
		return "", fmt.Errorf("failed to write temp file: %v", err)
	}
	src := "int main() {\n" + line + "\nreturn 0;\n}\n"
	if _, err := f.WriteString(src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %v", err)
	}
	return f.Name(), nil
}

func main() {
	scc, err := findCompiler()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("S REPL - type :quit to exit")
	fmt.Println("Note: one line = one statement (end with ';' if needed)")

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("s> ")
		if !in.Scan() {
			break
		}
		line := in.Text()
		if line == ":quit" || line == ":q" {
			break
		}
		if line == "" {
			continue
		}

		tmp, err := writeTempProgram(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cmd := exec.Command(scc, "--run", tmp)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			fmt.Println("(error)")
		}
		os.Remove(tmp)
	}
}
