// Package readelf obtains the tables of an ELF image by running the
// readelf tool from binutils.
package readelf

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/logflags"
)

// DefaultPath is the readelf executable used when none is configured.
const DefaultPath = "readelf"

// phdrNotCovered is printed for kernel images, whose program headers are
// not inside a loadable segment. readelf exits with an error status but
// the tables are complete.
const phdrNotCovered = "the PHDR segment is not covered by a LOAD segment"

var tableFlags = map[elfmeta.TableKind]string{
	elfmeta.SectionTable:    "-SW",
	elfmeta.SymbolTable:     "-sW",
	elfmeta.RelocationTable: "-rW",
	elfmeta.FileHeader:      "-hW",
}

// ProcessError is returned when readelf exits with a non-zero status.
type ProcessError struct {
	Tool     string
	Args     []string
	ExitCode int
	// Output is the standard error of readelf followed by its standard
	// output.
	Output string
}

func (e *ProcessError) Error() string {
	return e.Output
}

// Tool runs a readelf executable.
type Tool struct {
	Path string
	log  logflags.Logger
}

// New returns a Tool running the readelf executable at path. If path is
// empty DefaultPath is searched in PATH.
func New(path string) *Tool {
	if path == "" {
		path = DefaultPath
	}
	return &Tool{Path: path, log: logflags.ReadelfLogger()}
}

var _ elfmeta.TableProvider = &Tool{}

// Table implements elfmeta.TableProvider.
func (t *Tool) Table(kind elfmeta.TableKind, image string) (string, error) {
	flag, ok := tableFlags[kind]
	if !ok {
		return "", errors.Errorf("unknown table %v", kind)
	}
	return t.run(flag, image)
}

// run executes readelf with args and waits for it to finish.
func (t *Tool) run(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(t.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	t.log.Debugf("running %s %s", t.Path, strings.Join(args, " "))
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", errors.Wrapf(err, "could not run %s", t.Path)
	}
	if strings.Contains(stderr.String(), phdrNotCovered) {
		t.log.Debugf("ignoring exit status %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		return stdout.String(), nil
	}
	return "", &ProcessError{
		Tool:     t.Path,
		Args:     args,
		ExitCode: exitErr.ExitCode(),
		Output:   stderr.String() + stdout.String(),
	}
}
