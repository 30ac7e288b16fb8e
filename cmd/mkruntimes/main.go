// mkruntimes copies built srt runtime binaries into
// pkg/runtimes/images so a subsequent scc build embeds them.
//
//	mkruntimes <runtime_x64> [<runtime_x86>]
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

const imagesDir = "pkg/runtimes/images"

func install(src, name string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", src, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", src)
	}
	dst := filepath.Join(imagesDir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %v", dst, err)
	}
	fmt.Printf("installed %s (%d bytes)\n", dst, len(data))
	return nil
}

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "Usage: mkruntimes <runtime_x64> [<runtime_x86>]")
		os.Exit(1)
	}
	if err := install(os.Args[1], "srt_x64"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) == 3 {
		if err := install(os.Args[2], "srt_x86"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
