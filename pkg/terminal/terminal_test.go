package terminal

import (
	"bytes"
	"testing"
)

func TestHighlight(t *testing.T) {
	term := &Term{}
	if got := term.highlight("start_kernel", ansiYellow); got != "start_kernel" {
		t.Errorf("unexpected highlight without colors %q", got)
	}
	term.colors = true
	if got := term.highlight("start_kernel", ansiYellow); got != "\033[33mstart_kernel\033[0m" {
		t.Errorf("unexpected highlight %q", got)
	}
}

func TestPagingWriterNotStdout(t *testing.T) {
	var buf bytes.Buffer
	w := newOutWriter(&buf)
	w.pw.PageMaybe()
	if w.pw.mode != pagingWriterNormal {
		t.Fatalf("paging enabled for a writer that is not stdout")
	}
	w.Write([]byte("hello\n"))
	w.Flush()
	if buf.String() != "hello\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
