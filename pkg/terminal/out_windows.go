package terminal

import (
	"os"
	"os/signal"

	"golang.org/x/sys/windows"
)

func (w *pagingWriter) getWindowSize() {
	var sbi windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(windows.Stdout, &sbi); err != nil {
		w.mode = pagingWriterNormal
		return
	}
	w.columns = int(sbi.Window.Right - sbi.Window.Left + 1)
	w.lines = int(sbi.Window.Bottom - sbi.Window.Top + 1)
}

func notifyInterrupt(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
