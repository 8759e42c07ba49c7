package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-delve/liner"

	"github.com/go-delve/kmeta/pkg/config"
	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/logflags"
	"github.com/go-delve/kmeta/pkg/terminal/starbind"
)

const historyFile string = ".kmeta_history"

// Opener binds a new image to the terminal.
type Opener func(path string) (*elfmeta.File, error)

// Term represents the terminal running kmeta.
type Term struct {
	file     *elfmeta.File
	open     Opener
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	stdout   *outWriter
	colors   bool
	InitFile string

	starlarkEnv *starbind.Env
	log         logflags.Logger
}

// New returns a new Term. The file may be nil, in which case an image must
// be selected with the file command, using open.
func New(file *elfmeta.File, open Opener, conf *config.Config) *Term {
	cmds := ImageCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer
	colors := stdoutIsTerminal()
	if colors {
		w = getColorableWriter()
	} else {
		w = os.Stdout
	}

	t := &Term{
		file:   file,
		open:   open,
		conf:   conf,
		prompt: "(kmeta) ",
		cmds:   cmds,
		stdout: newOutWriter(w),
		colors: colors,
		log:    logflags.TerminalLogger(),
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// File returns the image the terminal is bound to.
func (t *Term) File() *elfmeta.File {
	return t.file
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.starlarkEnv.Cancel()
	}
}

// Run begins running kmeta in the terminal.
func (t *Term) Run() (int, error) {
	t.line = liner.NewLiner()
	defer t.Close()

	// Stop running starlark scripts on SIGINT
	ch := make(chan os.Signal, 1)
	notifyInterrupt(ch)
	go t.sigintGuard(ch)

	t.line.SetCompleter(func(line string) []string {
		return t.cmds.completions(t, line)
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.Call(cmdstr); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// Call executes a single command line and ends paging of its output.
func (t *Term) Call(cmdstr string) error {
	defer t.stdout.Flush()
	t.log.Debugf("command %q", cmdstr)
	return t.cmds.Call(cmdstr, t)
}

// highlight wraps s in the escape sequence of color when the terminal
// displays colors.
func (t *Term) highlight(s string, color int) string {
	if !t.colors {
		return s
	}
	return fmt.Sprintf(terminalHighlightEscapeCode, color) + s + terminalResetEscapeCode
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}
	return 0, nil
}
