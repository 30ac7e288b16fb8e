// Package pack turns a runtime image plus a payload into a
// self-contained executable, and recovers the payload from a packaged
// executable at run time.
//
// The portable mechanism is the trailer: the payload is appended to a
// copy of the runtime image, followed by a fixed 12-byte suffix of
// u32 payload size (little-endian) and an 8-byte magic. Only the last
// 12 bytes of the file define the trailer, so runtime images that
// happen to contain the magic earlier are handled correctly.
//
// A host-resource mechanism (RT_RCDATA-style named binary resource,
// id 101, neutral language) is offered behind the same interface as
// a pair of hook functions; without hooks installed it reports that
// resource embedding is unsupported.
package pack

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Magic is the 8-byte trailer signature.
const Magic = "SBC0MAG0"

// trailerSize is u32 payload size + 8 magic bytes.
const trailerSize = 12

// ResourceID is the resource identifier payloads are attached under
// when the resource mechanism is used.
const ResourceID = 101

// Embedder attaches a payload to a runtime image, producing the output
// executable, and extracts the payload back out of the running
// executable.
type Embedder interface {
	Attach(image, payload []byte, outPath string) error
	ExtractSelf() ([]byte, error)
}

// writeFileAtomic writes data to outPath with executable permissions,
// going through a temporary file in the same directory so a failure
// never leaves a partial output file.
func writeFileAtomic(data []byte, outPath string) error {
	dir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", outPath, err)
	}
	tmpPath := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpPath, 0o755)
	}
	if werr == nil {
		werr = os.Rename(tmpPath, outPath)
	}
	if werr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %v", outPath, werr)
	}
	return nil
}

// Trailer is the portable payload embedding mechanism.
type Trailer struct{}

// Build returns the full output image: runtime image, payload, and
// trailer.
func (Trailer) Build(image, payload []byte) []byte {
	out := make([]byte, 0, len(image)+len(payload)+trailerSize)
	out = append(out, image...)
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, Magic...)
	return out
}

// Attach writes image+payload+trailer to outPath.
func (t Trailer) Attach(image, payload []byte, outPath string) error {
	return writeFileAtomic(t.Build(image, payload), outPath)
}

// ExtractSelf reads the payload out of the running executable.
func (t Trailer) ExtractSelf() ([]byte, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot locate own executable: %v", err)
	}
	return t.ExtractFile(self)
}

// ExtractFile reads the payload out of a packaged executable at path.
func (Trailer) ExtractFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < trailerSize {
		return nil, fmt.Errorf("Missing payload trailer")
	}

	var trailer [trailerSize]byte
	if _, err := f.ReadAt(trailer[:], size-trailerSize); err != nil {
		return nil, err
	}
	if string(trailer[4:]) != Magic {
		return nil, fmt.Errorf("Missing payload trailer")
	}
	payloadSize := int64(binary.LittleEndian.Uint32(trailer[:4]))
	if payloadSize > size-trailerSize {
		return nil, fmt.Errorf("Corrupt payload trailer")
	}

	payload := make([]byte, payloadSize)
	if _, err := f.ReadAt(payload, size-trailerSize-payloadSize); err != nil {
		return nil, err
	}
	return payload, nil
}

// Resource embeds the payload as a named binary resource in the
// runtime image, when the host provides the resource-update facility.
// AttachFn updates the written image file; FindFn reads the resource
// back from the running executable.
type Resource struct {
	AttachFn func(path string, id int, data []byte) error
	FindFn   func(id int) ([]byte, error)
}

func (r Resource) Attach(image, payload []byte, outPath string) error {
	if r.AttachFn == nil {
		return fmt.Errorf("resource embedding is not supported on this platform")
	}
	if err := writeFileAtomic(image, outPath); err != nil {
		return err
	}
	return r.AttachFn(outPath, ResourceID, payload)
}

func (r Resource) ExtractSelf() ([]byte, error) {
	if r.FindFn == nil {
		return nil, fmt.Errorf("resource extraction is not supported on this platform")
	}
	return r.FindFn(ResourceID)
}
