package extract_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/extract"
)

const textSection = "  [ 1] .text             PROGBITS        0000000000001000 000200 000500 00  AX  0   0 16\n"

func makeImage(t *testing.T) (*elfmeta.File, []byte) {
	t.Helper()
	data := make([]byte, 0x800)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "vmlinux")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := elfmeta.New(path, elfmeta.TableProviderFunc(func(kind elfmeta.TableKind, _ string) (string, error) {
		return textSection, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	return f, data
}

func TestExtract(t *testing.T) {
	f, data := makeImage(t)
	out := filepath.Join(t.TempDir(), "out.bin")
	if err := extract.Extract(f, 0x1010, 0x40, out); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data[0x210:0x250]) {
		t.Fatalf("wrong bytes:\n%x\n%x", got, data[0x210:0x250])
	}
}

func TestExtractNoSection(t *testing.T) {
	f, _ := makeImage(t)
	out := filepath.Join(t.TempDir(), "out.bin")
	err := extract.Extract(f, 0x9000, 0x10, out)
	if !errors.Is(err, elfmeta.ErrNoSection) {
		t.Fatalf("expected ErrNoSection, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output file should not have been created: %v", err)
	}
}

func TestExtractShortRead(t *testing.T) {
	f, _ := makeImage(t)
	out := filepath.Join(t.TempDir(), "out.bin")
	// .text claims 0x500 bytes at offset 0x200 but the image is 0x800 long.
	err := extract.Extract(f, 0x1400, 0x500, out)
	if !errors.Is(err, extract.ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("partial output file should have been removed: %v", err)
	}
}

func TestRead(t *testing.T) {
	f, data := makeImage(t)
	got, err := extract.Read(f, 0x1000, 0x10)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data[0x200:0x210]) {
		t.Fatalf("wrong bytes %x", got)
	}
	if _, err := extract.Read(f, 0x1400, 0x500); !errors.Is(err, extract.ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
}

func TestExtractSizeOverflow(t *testing.T) {
	f, _ := makeImage(t)
	out := filepath.Join(t.TempDir(), "out.bin")
	for _, size := range []uint64{1 << 63, math.MaxUint64} {
		err := extract.Extract(f, 0x1000, size, out)
		if !errors.Is(err, elfmeta.ErrInvalidArgument) {
			t.Fatalf("size %#x: expected ErrInvalidArgument, got %v", size, err)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Fatalf("size %#x: output file should not have been created: %v", size, err)
		}
	}
}

func TestExtractPastEndOfImage(t *testing.T) {
	f, _ := makeImage(t)
	out := filepath.Join(t.TempDir(), "out.bin")
	tests := []struct {
		vaddr, size uint64
	}{
		{0x1000, 0x601},         // one byte past the end
		{0x1000, math.MaxInt64}, // fits an int64, larger than the image
		{0x1400, 0x500},         // inside .text, past the end of the file
	}
	for _, tc := range tests {
		err := extract.Extract(f, tc.vaddr, tc.size, out)
		if !errors.Is(err, extract.ErrShortRead) {
			t.Fatalf("%#x bytes at %#x: expected ErrShortRead, got %v", tc.size, tc.vaddr, err)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Fatalf("%#x bytes at %#x: output file should not have been created: %v", tc.size, tc.vaddr, err)
		}
	}
	// The last byte of the image is still reachable.
	if err := extract.Extract(f, 0x1000, 0x600, out); err != nil {
		t.Fatal(err)
	}
}

func TestReadSizeOverflow(t *testing.T) {
	f, _ := makeImage(t)
	if _, err := extract.Read(f, 0x1000, 1<<63); !errors.Is(err, elfmeta.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := extract.Read(f, 0x1000, math.MaxInt64); !errors.Is(err, extract.ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
}
