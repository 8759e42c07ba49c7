package readelf_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/readelf"
)

// fakeReadelf writes a shell script standing in for readelf and returns
// its path.
func fakeReadelf(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "readelf")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTableArguments(t *testing.T) {
	tool := readelf.New(fakeReadelf(t, `echo "$1 $2"`))
	tests := []struct {
		kind elfmeta.TableKind
		want string
	}{
		{elfmeta.SectionTable, "-SW /boot/vmlinux\n"},
		{elfmeta.SymbolTable, "-sW /boot/vmlinux\n"},
		{elfmeta.RelocationTable, "-rW /boot/vmlinux\n"},
		{elfmeta.FileHeader, "-hW /boot/vmlinux\n"},
	}
	for _, tt := range tests {
		out, err := tool.Table(tt.kind, "/boot/vmlinux")
		if err != nil {
			t.Fatal(err)
		}
		if out != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.kind, tt.want, out)
		}
	}
}

func TestProcessError(t *testing.T) {
	tool := readelf.New(fakeReadelf(t, `echo partial; echo "readelf: Error: 'vmlinux': No such file" >&2; exit 1`))
	_, err := tool.Table(elfmeta.SectionTable, "vmlinux")
	var perr *readelf.ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a ProcessError, got %v", err)
	}
	if perr.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", perr.ExitCode)
	}
	if perr.Output != "readelf: Error: 'vmlinux': No such file\npartial\n" {
		t.Errorf("unexpected output %q", perr.Output)
	}
	if err.Error() != perr.Output {
		t.Errorf("error message should be the tool output, got %q", err.Error())
	}
}

func TestPHDRWarningTolerated(t *testing.T) {
	tool := readelf.New(fakeReadelf(t, `echo "  [ 1] .text PROGBITS 0000000000001000 000200 000500"
echo "readelf: Error: the PHDR segment is not covered by a LOAD segment" >&2
exit 1`))
	out, err := tool.Table(elfmeta.SectionTable, "vmlinux")
	if err != nil {
		t.Fatalf("expected PHDR diagnostic to be ignored, got %v", err)
	}
	if !strings.Contains(out, ".text") {
		t.Fatalf("expected standard output to be returned, got %q", out)
	}
}

func TestMissingExecutable(t *testing.T) {
	tool := readelf.New(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := tool.Table(elfmeta.SymbolTable, "vmlinux")
	if err == nil {
		t.Fatal("expected an error")
	}
	var perr *readelf.ProcessError
	if errors.As(err, &perr) {
		t.Fatalf("a missing executable is not a process error: %v", err)
	}
}

func TestStoreWithTool(t *testing.T) {
	tool := readelf.New(fakeReadelf(t, `case "$1" in
-SW) echo "  [ 1] .text             PROGBITS        0000000000001000 000200 000500 00  AX  0   0 16" ;;
-sW) echo "     1: 0000000000001000    64 FUNC    GLOBAL DEFAULT    1 start_kernel" ;;
esac`))
	f, err := elfmeta.New("vmlinux", tool)
	if err != nil {
		t.Fatal(err)
	}
	sym, err := f.SymbolByAddr(0x1010)
	if err != nil {
		t.Fatal(err)
	}
	if sym == nil || sym.Name != "start_kernel" {
		t.Fatalf("wrong symbol %v", sym)
	}
	off, err := f.VAddrToOffset(sym.Addr)
	if err != nil {
		t.Fatal(err)
	}
	if off != 0x200 {
		t.Fatalf("wrong offset %#x", off)
	}
}

func TestDefaultPath(t *testing.T) {
	if tool := readelf.New(""); tool.Path != readelf.DefaultPath {
		t.Fatalf("expected %s, got %s", readelf.DefaultPath, tool.Path)
	}
}
