//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package terminal

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

func (w *pagingWriter) getWindowSize() {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		w.mode = pagingWriterNormal
		return
	}
	w.lines = int(ws.Row)
	w.columns = int(ws.Col)
}

func notifyInterrupt(ch chan<- os.Signal) {
	signal.Notify(ch, unix.SIGINT)
}
