package pack

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTrailerBuildLayout(t *testing.T) {
	image := []byte("IMAGE")
	payload := []byte{1, 2, 3}
	out := Trailer{}.Build(image, payload)

	if !bytes.HasPrefix(out, image) {
		t.Error("output does not start with the runtime image")
	}
	if !bytes.HasSuffix(out, []byte(Magic)) {
		t.Error("output does not end with the magic")
	}
	if len(out) != len(image)+len(payload)+trailerSize {
		t.Errorf("output length %d, want %d", len(out), len(image)+len(payload)+trailerSize)
	}
	// size word, little-endian
	sizeWord := out[len(out)-trailerSize : len(out)-8]
	if !bytes.Equal(sizeWord, []byte{3, 0, 0, 0}) {
		t.Errorf("size word = %v, want [3 0 0 0]", sizeWord)
	}
}

func TestTrailerAttachAndExtract(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.exe")
	image := []byte("fake runtime image bytes")
	payload := []byte("the payload")

	if err := (Trailer{}).Attach(image, payload, outPath); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	got, err := Trailer{}.ExtractFile(outPath)
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}

	// No leftover temp files after a successful attach.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the output file in %s, found %d entries", dir, len(entries))
	}
}

// A runtime image containing the magic bytes in its body must not
// confuse extraction: only the last 12 bytes define the trailer.
func TestTrailerIgnoresEarlyMagic(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.exe")
	image := append([]byte("prefix"), []byte(Magic)...)
	image = append(image, []byte("suffix")...)
	payload := []byte(Magic + "inside payload too")

	if err := (Trailer{}).Attach(image, payload, outPath); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	got, err := Trailer{}.ExtractFile(outPath)
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
}

func TestTrailerExtractEmptyPayload(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.exe")
	if err := (Trailer{}).Attach([]byte("image"), nil, outPath); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	got, err := Trailer{}.ExtractFile(outPath)
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %q", got)
	}
}

func TestTrailerExtractErrors(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short")
	if err := os.WriteFile(short, []byte("tiny"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (Trailer{}).ExtractFile(short); err == nil || !strings.Contains(err.Error(), "Missing payload trailer") {
		t.Errorf("short file: expected missing trailer, got %v", err)
	}

	badMagic := filepath.Join(dir, "badmagic")
	if err := os.WriteFile(badMagic, []byte("0123456789abcdef"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (Trailer{}).ExtractFile(badMagic); err == nil || !strings.Contains(err.Error(), "Missing payload trailer") {
		t.Errorf("bad magic: expected missing trailer, got %v", err)
	}

	// Size word claims more payload than the file holds.
	corrupt := filepath.Join(dir, "corrupt")
	data := append([]byte{255, 255, 0, 0}, []byte(Magic)...)
	if err := os.WriteFile(corrupt, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (Trailer{}).ExtractFile(corrupt); err == nil || !strings.Contains(err.Error(), "Corrupt payload trailer") {
		t.Errorf("corrupt size: expected corrupt trailer, got %v", err)
	}

	if _, err := (Trailer{}).ExtractFile(filepath.Join(dir, "absent")); err == nil {
		t.Error("absent file: expected error")
	}
}

func TestResourceWithoutHooks(t *testing.T) {
	var r Resource
	if err := r.Attach(nil, nil, filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("expected unsupported error from Attach")
	}
	if _, err := r.ExtractSelf(); err == nil {
		t.Error("expected unsupported error from ExtractSelf")
	}
}

func TestResourceWithHooks(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.exe")
	store := map[int][]byte{}

	r := Resource{
		AttachFn: func(path string, id int, data []byte) error {
			store[id] = append([]byte(nil), data...)
			return nil
		},
		FindFn: func(id int) ([]byte, error) {
			return store[id], nil
		},
	}
	if err := r.Attach([]byte("image"), []byte("pay"), outPath); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("image file not written: %v", err)
	}
	got, err := r.ExtractSelf()
	if err != nil {
		t.Fatalf("ExtractSelf failed: %v", err)
	}
	if !bytes.Equal(got, []byte("pay")) {
		t.Errorf("payload = %q, want %q", got, "pay")
	}
	if _, ok := store[ResourceID]; !ok {
		t.Errorf("payload not stored under id %d", ResourceID)
	}
}
