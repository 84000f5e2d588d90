package filestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"fcopy/internal/nastydisk"
)

func writeTempFile(t *testing.T, dir string, data []byte) string {
	t.Helper()
	name := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	return name
}

func TestReadExactBytesAcrossNastiness(t *testing.T) {
	dir := t.TempDir()

	sizes := []int{0, 1, 490, 491, 492, 1000, 2500}
	for _, size := range sizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i % 251)
		}
		name := writeTempFile(t, dir, data)

		for nastiness := 0; nastiness <= 3; nastiness++ {
			disk := nastydisk.New(nastiness)
			got, err := Read(disk, name)
			if err != nil {
				t.Fatalf("size=%d nastiness=%d: Read: %v", size, nastiness, err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("size=%d nastiness=%d: bytes mismatch", size, nastiness)
			}
		}
	}
}

func TestReadMissingFile(t *testing.T) {
	disk := nastydisk.New(0)
	if _, err := Read(disk, filepath.Join(t.TempDir(), "nope")); err != ErrNotRegularFile {
		t.Fatalf("expected ErrNotRegularFile, got %v", err)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "out.bin")
	disk := nastydisk.New(1)
	want := []byte("round trip through filestore.Write and filestore.Read")

	if err := Write(disk, name, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(disk, name)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}
