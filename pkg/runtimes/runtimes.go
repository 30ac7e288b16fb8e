// Package runtimes resolves the prebuilt runtime image the packager
// bases output executables on. Images are embedded at build time from
// the images/ directory (populated by cmd/mkruntimes after building
// cmd/srt); when an image was not embedded, a file named srt_<arch>
// next to the running compiler binary is used instead.
package runtimes

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

//go:embed images
var images embed.FS

// Arches are the supported runtime image architectures.
var Arches = []string{"x64", "x86"}

// For returns the runtime image bytes for the given architecture.
func For(arch string) ([]byte, error) {
	known := false
	for _, a := range Arches {
		if a == arch {
			known = true
		}
	}
	if !known {
		return nil, fmt.Errorf("Unknown arch: %s", arch)
	}

	name := "srt_" + arch
	if data, err := images.ReadFile("images/" + name); err == nil && len(data) > 0 {
		return data, nil
	}

	// Not embedded in this build; look next to the compiler binary.
	exeDir, err := ExeDir()
	if err == nil {
		for _, candidate := range []string{name, name + ".exe"} {
			if data, err := os.ReadFile(filepath.Join(exeDir, candidate)); err == nil && len(data) > 0 {
				return data, nil
			}
		}
	}
	return nil, fmt.Errorf("Embedded runtime is empty. Rebuild embedded runtimes (mkruntimes) or place %s next to the compiler.", name)
}

// DetectArch maps the host architecture to a runtime image choice.
// There is no ARM image; arm64 hosts run the x64 image.
func DetectArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	case "arm64":
		return "x64"
	default:
		return "x64"
	}
}

// ExeDir returns the directory holding the running executable.
func ExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}
