package starbind

// Code in this file is derived from go.starlark.net/repl/repl.go
// Which is licensed under the following copyright:
//
// Copyright (c) 2017 The Bazel Authors.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are
// met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the
//    distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived
//    from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
// "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
// LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
// A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
// HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
// LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
// DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
// THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
// (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/go-delve/liner"
)

const (
	normalPrompt = ">>> "
	extraPrompt  = "... "

	exitCommand = "exit"
)

// REPL reads starlark statements from the terminal and evaluates them until
// exit or end of input. Tab completes builtin and global names, inside a
// string literal it completes symbol names of the bound image. Exported
// globals are kept in env when the REPL ends.
func (env *Env) REPL() error {
	thread := env.newThread()
	globals := make(starlark.StringDict, len(env.env))
	for k, v := range env.env {
		globals[k] = v
	}

	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCompleter(func(line string) []string {
		return env.complete(line, globals)
	})

	for {
		if err := isCancelled(thread); err != nil {
			return err
		}
		f, err := readItem(rl, env.out)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if f != nil {
			evalItem(thread, f, globals, env.out)
		}
		env.out.Flush()
	}
	fmt.Fprintln(env.out)
	return env.exportGlobals(globals)
}

// readItem reads lines until they form a complete statement. Parse errors
// are printed and reported as a nil file.
func readItem(rl *liner.State, out EchoWriter) (*syntax.File, error) {
	prompt := normalPrompt
	var eof error
	readline := func() ([]byte, error) {
		line, err := rl.Prompt(prompt)
		out.Echo(prompt + line)
		if err == nil && line == exitCommand {
			err = io.EOF
		}
		if err != nil {
			if err == io.EOF {
				eof = err
			}
			return nil, err
		}
		rl.AppendHistory(line)
		prompt = extraPrompt
		return []byte(line + "\n"), nil
	}

	f, err := syntax.ParseCompoundStmt("<stdin>", readline)
	switch {
	case eof != nil:
		return nil, eof
	case err != nil:
		printError(out, err)
		return nil, nil
	}
	return f, nil
}

// evalItem evaluates a statement, printing the value of expressions. Globals
// it defines are added to globals even if it fails halfway.
func evalItem(thread *starlark.Thread, f *syntax.File, globals starlark.StringDict, out io.Writer) {
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			v, err := starlark.EvalExpr(thread, stmt.X, globals)
			switch {
			case err != nil:
				printError(out, err)
			case v != starlark.None:
				fmt.Fprintln(out, v)
			}
			return
		}
	}

	prog, err := starlark.FileProgram(f, globals.Has)
	if err != nil {
		printError(out, err)
		return
	}
	res, err := prog.Init(thread, globals)
	if err != nil {
		printError(out, err)
	}
	for k, v := range res {
		globals[k] = v
	}
}

func printError(out io.Writer, err error) {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		fmt.Fprintln(out, evalErr.Backtrace())
		return
	}
	fmt.Fprintln(out, err)
}

// complete returns the completions of line. An unterminated string literal
// completes to the names of symbols of the bound image, otherwise the last
// identifier completes to builtins, globals and starlark universals.
func (env *Env) complete(line string, globals starlark.StringDict) []string {
	start, inString, inComment := scanLine(line)
	switch {
	case inComment:
		return nil
	case inString:
		prefix := line[start:]
		f := env.ctx.File()
		if prefix == "" || f == nil {
			return nil
		}
		names, err := f.SymbolsWithPrefix(prefix)
		if err != nil {
			return nil
		}
		r := make([]string, len(names))
		for i := range names {
			r[i] = line[:start] + names[i]
		}
		return r
	}

	start = len(line)
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	prefix := line[start:]
	if prefix == "" {
		return nil
	}
	seen := map[string]bool{}
	var names []string
	for _, dict := range []starlark.StringDict{starlark.Universe, env.env, globals} {
		for name := range dict {
			if strings.HasPrefix(name, prefix) && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	for i := range names {
		names[i] = line[:start] + names[i]
	}
	return names
}

// scanLine reports whether line ends inside a string literal, and where its
// contents start, or inside a comment.
func scanLine(line string) (strStart int, inString, inComment bool) {
	var quote byte
	for i := 0; i < len(line); i++ {
		switch ch := line[i]; {
		case quote == 0 && (ch == '"' || ch == '\''):
			quote, strStart = ch, i+1
		case quote == 0 && ch == '#':
			return 0, false, true
		case quote != 0 && ch == '\\':
			i++
		case ch == quote:
			quote = 0
		}
	}
	return strStart, quote != 0, false
}

func isIdentByte(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9')
}
