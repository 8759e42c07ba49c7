package starbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/go-delve/kmeta/pkg/elfmeta"
)

const (
	kmetaCommandBuiltinName = "kmeta_command"
	imageBuiltinName        = "image"
	readFileBuiltinName     = "read_file"
	writeFileBuiltinName    = "write_file"
	helpBuiltinName         = "help"

	commandPrefix    = "command_"
	kmetaContextName = "kmeta_context"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context is the context in which starlark scripts are evaluated.
// It gives access to the bound image and to terminal commands.
type Context interface {
	// File returns the image currently bound, or nil.
	File() *elfmeta.File
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	CallCommand(cmdstr string) error
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	doc       map[string]string
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx Context
	out EchoWriter
}

type builtinFn func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// New creates a new starlark binding environment.
func New(ctx Context, out EchoWriter) *Env {
	env := &Env{ctx: ctx, out: out}

	starlark.Universe["time"] = startime.Module

	env.env, env.doc = env.starlarkPredeclare()

	env.builtin(kmetaCommandBuiltinName, "(Command, Args...)", "runs a terminal command, its arguments are joined with spaces.", env.kmetaCommand)
	env.builtin(imageBuiltinName, "()", "returns the path of the bound image, or None.", env.imagePath)
	env.builtin(readFileBuiltinName, "(Path)", "returns the contents of a file as a string.", readFile)
	env.builtin(writeFileBuiltinName, "(Path, Text)", "writes Text, or its string representation, to a file.", writeFile)
	env.builtin(helpBuiltinName, "(Object)", "prints help for Object, or the list of builtins.", env.help)

	return env
}

func (env *Env) builtin(name, args, descr string, fn builtinFn) {
	env.env[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		v, err := fn(thread, args, kwargs)
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		return v, nil
	})
	env.doc[name] = "builtin " + name + args + "\n\n" + name + " " + descr
}

func (env *Env) kmetaCommand(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	argstrs := make([]string, len(args))
	for i := range args {
		a, ok := args[i].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("argument %d of %s is not a string", i, kmetaCommandBuiltinName)
		}
		argstrs[i] = string(a)
	}
	return starlark.None, env.ctx.CallCommand(strings.Join(argstrs, " "))
}

func (env *Env) imagePath(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(imageBuiltinName, args, kwargs, 0); err != nil {
		return nil, err
	}
	f := env.ctx.File()
	if f == nil {
		return starlark.None, nil
	}
	return starlark.String(f.Path()), nil
}

func readFile(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackPositionalArgs(readFileBuiltinName, args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return starlark.String(buf), nil
}

func writeFile(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	var textv starlark.Value
	if err := starlark.UnpackPositionalArgs(writeFileBuiltinName, args, kwargs, 2, &path, &textv); err != nil {
		return nil, err
	}
	text := textv.String()
	if s, ok := textv.(starlark.String); ok {
		text = string(s)
	}
	return starlark.None, os.WriteFile(path, []byte(text), 0640)
}

func (env *Env) help(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj starlark.Value
	if err := starlark.UnpackPositionalArgs(helpBuiltinName, args, kwargs, 0, &obj); err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		fmt.Fprintln(env.out, "Available builtins:")
		for _, name := range env.builtinNames() {
			// first line of the documentation is the signature
			sig, _, _ := strings.Cut(strings.TrimPrefix(env.doc[name], "builtin "), "\n")
			if sig == "" {
				sig = name
			}
			fmt.Fprintf(env.out, "\t%s\n", sig)
		}
	case *starlark.Builtin:
		if doc := env.doc[x.Name()]; doc != "" {
			fmt.Fprintln(env.out, doc)
		} else {
			fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
		}
	case *starlark.Function:
		fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
		if doc := x.Doc(); doc != "" {
			fmt.Fprintln(env.out, doc)
		}
	default:
		fmt.Fprintf(env.out, "no help for object of type %s\n", obj.Type())
	}
	return starlark.None, nil
}

// builtinNames returns the sorted names of the builtins of env.
func (env *Env) builtinNames() []string {
	r := make([]string, 0, len(env.env))
	for name, value := range env.env {
		if _, ok := value.(*starlark.Builtin); ok {
			r = append(r, name)
		}
	}
	sort.Strings(r)
	return r
}

// Redirect redirects starlark output to out.
func (env *Env) Redirect(out EchoWriter) {
	env.out = out
	if env.thread != nil {
		env.thread.Print = env.printFunc()
	}
}

func (env *Env) printFunc() func(_ *starlark.Thread, msg string) {
	return func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) }
}

// Execute runs the script at path, or source if it is not nil (a []byte, a
// string or an io.Reader). Exported globals are kept in env for later
// scripts and the REPL. If the script defines a function named mainFnName it
// is then called with args.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []interface{}) (_ starlark.Value, _err error) {
	defer func() {
		if r := recover(); r != nil {
			_err = fmt.Errorf("panic executing %s: %v", path, r)
			fmt.Fprintf(env.out, "%v\n%s", _err, debug.Stack())
		}
	}()

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}

	err = env.exportGlobals(globals)
	if err != nil {
		return starlark.None, err
	}

	return env.callMain(thread, globals, mainFnName, args)
}

// exportGlobals saves globals with a name starting with a capital letter
// into the environment and creates commands from globals with a name
// starting with "command_"
func (env *Env) exportGlobals(globals starlark.StringDict) error {
	for name, val := range globals {
		switch {
		case strings.HasPrefix(name, commandPrefix):
			err := env.createCommand(name, val)
			if err != nil {
				return err
			}
		case name[0] >= 'A' && name[0] <= 'Z':
			env.env[name] = val
		}
	}
	return nil
}

// Cancel cancels the execution of a currently running script or function.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: env.printFunc(),
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(kmetaContextName, ctx)
	return thread
}

func (env *Env) createCommand(name string, val starlark.Value) error {
	fnval, ok := val.(*starlark.Function)
	if !ok {
		return nil
	}

	name = name[len(commandPrefix):]

	helpMsg := fnval.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}

	if fnval.NumParams() == 1 {
		if p0, _ := fnval.Param(0); p0 == "args" {
			env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
				_, err := starlark.Call(env.newThread(), fnval, starlark.Tuple{starlark.String(args)}, nil)
				return err
			})
			return nil
		}
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		thread := env.newThread()
		argval, err := starlark.Eval(thread, "<input>", "("+args+")", env.env)
		if err != nil {
			return err
		}
		argtuple, ok := argval.(starlark.Tuple)
		if !ok {
			argtuple = starlark.Tuple{argval}
		}
		_, err = starlark.Call(thread, fnval, argtuple, nil)
		return err
	})
	return nil
}

// callMain calls the main function in globals, if one was defined.
func (env *Env) callMain(thread *starlark.Thread, globals starlark.StringDict, mainFnName string, args []interface{}) (starlark.Value, error) {
	if mainFnName == "" {
		return starlark.None, nil
	}
	mainval := globals[mainFnName]
	if mainval == nil {
		return starlark.None, nil
	}
	mainfn, ok := mainval.(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	argtuple := make(starlark.Tuple, len(args))
	for i := range args {
		argtuple[i] = env.interfaceToStarlarkValue(args[i])
	}
	return starlark.Call(thread, mainfn, argtuple, nil)
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(kmetaContextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %w", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %w", pos.Filename(), pos.Line, err)
}

// EchoWriter is the output of starlark scripts.
type EchoWriter interface {
	io.Writer
	Echo(string)
	Flush()
}
