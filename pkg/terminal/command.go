// Package terminal implements functions for responding to user
// input and dispatching to the image store.
package terminal

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/grafana/regexp"

	"github.com/go-delve/kmeta/pkg/config"
	"github.com/go-delve/kmeta/pkg/disasm"
	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/extract"
	"github.com/go-delve/kmeta/pkg/intconv"
)

const (
	// maxReadSize is the largest range hexdump and disasm will read.
	maxReadSize = 1 << 20
	// defaultMaxRelocations is the default of the max-relocations option.
	defaultMaxRelocations = 1000
	// defaultDisasmSize is how many bytes disasm decodes when the symbol
	// size is unknown.
	defaultDisasmSize = 64
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
	// symbolArgs is true if the arguments of the command can be symbol
	// names, they are completed from the symbol table.
	symbolArgs bool
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the kmeta terminal.
type Commands struct {
	cmds []command
}

// ImageCommands returns a Commands struct with default commands defined.
func ImageCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"file"}, group: imageCmds, cmdFn: fileCommand, helpMsg: `Prints or changes the image being examined.

	file [path]

Without arguments prints the path of the current image. With a path, binds
the terminal to that image. Binding to a different image discards the tables
read from the previous one, binding to the same image keeps them.`},
		{aliases: []string{"header"}, group: imageCmds, cmdFn: headerCommand, helpMsg: `Prints the ELF file header of the image.`},
		{aliases: []string{"sections"}, group: tableCmds, cmdFn: sectionsCommand, helpMsg: `Prints the section table.

	sections [<regex>]

If regex is specified only the sections matching it will be returned.`},
		{aliases: []string{"symbols"}, group: tableCmds, cmdFn: symbolsCommand, helpMsg: `Prints the symbol table.

	symbols [<regex>]

If regex is specified only the symbols matching it will be returned.`},
		{aliases: []string{"relocs"}, group: tableCmds, cmdFn: relocsCommand, helpMsg: `Prints relocation addresses.

	relocs [<start> <end>]

With a start and an end address only the relocations between them,
inclusive, are printed. Relocations are printed in the order readelf lists
them, at most max-relocations of them (see "help config").`},
		{aliases: []string{"sym", "symbol"}, group: queryCmds, cmdFn: symCommand, symbolArgs: true, helpMsg: `Looks up symbols by name or address.

	sym <name|address> ...

Arguments starting with 0x are addresses and resolve to the symbol
containing them, any other argument is a symbol name. Arguments can be
separated by spaces or commas.`},
		{aliases: []string{"sec", "section"}, group: queryCmds, cmdFn: secCommand, helpMsg: `Looks up sections by name or address.

	sec <name|address> ...

Arguments starting with 0x are addresses and resolve to the section
containing them, any other argument is a section name. Arguments can be
separated by spaces or commas.`},
		{aliases: []string{"offset", "off"}, group: queryCmds, cmdFn: offsetCommand, symbolArgs: true, helpMsg: `Translates virtual addresses to file offsets.

	offset <address|symbol[+offset]> ...`},
		{aliases: []string{"extract"}, group: dataCmds, cmdFn: extractCommand, symbolArgs: true, helpMsg: `Copies a range of the image to a file.

	extract <address|symbol[+offset]> <size> <output file>`},
		{aliases: []string{"hexdump", "x"}, group: dataCmds, cmdFn: hexdumpCommand, symbolArgs: true, helpMsg: `Prints a range of the image in hexadecimal.

	hexdump <address|symbol[+offset]> [<size>]

If size is omitted and the argument is a symbol the size of the symbol is
used, otherwise 64 bytes are printed.`},
		{aliases: []string{"disasm", "disassemble"}, group: dataCmds, cmdFn: disasmCommand, symbolArgs: true, helpMsg: `Disassembler.

	disasm <address|symbol[+offset]> [<size>]

If size is omitted and the argument is a symbol the whole symbol is
disassembled. The syntax is chosen by the disassemble-flavor option.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of kmeta commands.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark
script. If path is a single '-' character an interactive starlark
interpreter will start instead. Type 'exit' to exit.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the terminal."},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will do nothing.
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// completions returns the completions of line, a partially typed command.
func (c *Commands) completions(t *Term, line string) []string {
	var r []string
	sp := strings.LastIndex(line, " ")
	if sp < 0 {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					r = append(r, alias)
				}
			}
		}
		return r
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmdname := fields[0]
	var symbolArgs bool
	for _, cmd := range c.cmds {
		if cmd.match(cmdname) {
			symbolArgs = cmd.symbolArgs
			break
		}
	}
	if !symbolArgs || t.file == nil {
		return nil
	}
	// lookups can also be separated by commas
	cut := strings.LastIndexAny(line, " ,")
	prefix := line[cut+1:]
	if prefix == "" || isAddress(prefix) {
		return nil
	}
	names, err := t.file.SymbolsWithPrefix(prefix)
	if err != nil {
		t.log.Debugf("completing %q: %v", prefix, err)
		return nil
	}
	for _, name := range names {
		r = append(r, line[:cut+1]+name)
	}
	return r
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

var errNoImage = errors.New("no image loaded, use the file command")

func (t *Term) image() (*elfmeta.File, error) {
	if t.file == nil {
		return nil, errNoImage
	}
	return t.file, nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits args the way a shell would.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

func isAddress(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

// location resolves an argument of the form address, symbol or
// symbol+offset. The symbol, if one was named, is returned too.
func (t *Term) location(arg string) (uint64, *elfmeta.Symbol, error) {
	f, err := t.image()
	if err != nil {
		return 0, nil, err
	}
	if isAddress(arg) {
		addr, err := intconv.ParseAddress(arg)
		return addr, nil, err
	}
	name, off := arg, uint64(0)
	if i := strings.LastIndex(arg, "+"); i > 0 {
		n, err := strconv.ParseUint(arg[i+1:], 0, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("wrong offset in %q: %v", arg, err)
		}
		name, off = arg[:i], n
	}
	sym, err := f.SymbolByName(name)
	if err != nil {
		return 0, nil, err
	}
	if sym == nil {
		return 0, nil, fmt.Errorf("could not find symbol %s", name)
	}
	return sym.Addr + off, sym, nil
}

// parseSize parses a byte count, either decimal or 0x prefixed hex.
func parseSize(s string) (uint64, error) {
	n, err := intconv.ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("wrong size %q", s)
	}
	return n, nil
}

func fileCommand(t *Term, args string) error {
	if args == "" {
		if t.file == nil {
			fmt.Fprintln(t.stdout, "No image loaded.")
			return nil
		}
		fmt.Fprintln(t.stdout, t.file.Path())
		return nil
	}
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 1 {
		return errors.New("wrong number of arguments: file [path]")
	}
	if _, err := os.Stat(v[0]); err != nil {
		return err
	}
	if t.file != nil {
		return t.file.SetPath(v[0])
	}
	if t.open == nil {
		return errors.New("can not open images")
	}
	f, err := t.open(v[0])
	if err != nil {
		return err
	}
	t.file = f
	return nil
}

func headerCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	h, err := f.Header()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "Class:\t%s\n", h.Class)
	fmt.Fprintf(w, "Data:\t%s\n", h.Data)
	fmt.Fprintf(w, "Type:\t%s\n", h.Type)
	fmt.Fprintf(w, "Machine:\t%s\n", h.Machine)
	fmt.Fprintf(w, "Entry point address:\t%#x\n", h.Entry)
	return w.Flush()
}

func filterRegex(args string) (*regexp.Regexp, error) {
	if args == "" {
		return nil, nil
	}
	rx, err := regexp.Compile(args)
	if err != nil {
		return nil, fmt.Errorf("invalid filter argument: %s", err.Error())
	}
	return rx, nil
}

func sectionsCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	rx, err := filterRegex(args)
	if err != nil {
		return err
	}
	secs, err := f.Sections()
	if err != nil {
		return err
	}
	t.stdout.pw.PageMaybe()
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintln(w, "Name\tType\tAddress\tOffset\tSize")
	for _, s := range secs {
		if rx != nil && !rx.MatchString(s.Name) {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%#016x\t%#08x\t%#x\n", t.highlight(s.Name, ansiGreen), s.Type, s.Addr, s.Offset, s.Size)
	}
	return w.Flush()
}

func symbolsCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	rx, err := filterRegex(args)
	if err != nil {
		return err
	}
	syms, err := f.Symbols()
	if err != nil {
		return err
	}
	t.stdout.pw.PageMaybe()
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintln(w, "Address\tSize\tType\tBind\tVis\tNdx\tName")
	for _, s := range syms {
		if rx != nil && !rx.MatchString(s.Name) {
			continue
		}
		fmt.Fprintf(w, "%#016x\t%d\t%s\t%s\t%s\t%s\t%s\n", s.Addr, s.Size, s.Type, s.Bind, s.Visibility, s.Ndx, t.highlight(s.Name, ansiYellow))
	}
	return w.Flush()
}

func relocsCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	v := strings.Fields(args)
	var relocs []uint64
	switch len(v) {
	case 0:
		relocs, err = f.Relocations()
	case 2:
		start, err1 := intconv.ParseAddress(v[0])
		end, err2 := intconv.ParseAddress(v[1])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("wrong range %q", args)
		}
		relocs, err = f.RelocationsInRange(start, end)
	default:
		return errors.New("wrong number of arguments: relocs [<start> <end>]")
	}
	if err != nil {
		return err
	}
	limit := defaultMaxRelocations
	if t.conf.MaxRelocations != nil {
		limit = *t.conf.MaxRelocations
	}
	t.stdout.pw.PageMaybe()
	bw := bufio.NewWriter(t.stdout)
	for i, a := range relocs {
		if limit > 0 && i >= limit {
			fmt.Fprintf(bw, "...%d more relocations (see max-relocations)\n", len(relocs)-i)
			break
		}
		fmt.Fprintf(bw, "%#016x\n", a)
	}
	return bw.Flush()
}

// splitQuery splits the arguments of sym and sec in a list of names and a
// list of addresses; mixing the two is allowed, results are printed in the
// order of the arguments. Arguments are separated by spaces or commas so
// that lists copied from readelf or a starlark script can be pasted.
func splitQuery(args string) (v []string, names []string, addrs []uint64, err error) {
	v = config.SplitQuotedFields(args, config.Quotes, ",")
	if len(v) == 0 {
		return nil, nil, nil, errors.New("not enough arguments")
	}
	for _, arg := range v {
		if isAddress(arg) {
			addr, err := intconv.ParseAddress(arg)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("wrong address %q", arg)
			}
			addrs = append(addrs, addr)
		} else {
			names = append(names, arg)
		}
	}
	return v, names, addrs, nil
}

func symCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	v, names, addrs, err := splitQuery(args)
	if err != nil {
		return err
	}
	byName, err := f.SymbolsByName(names)
	if err != nil {
		return err
	}
	byAddr, err := f.SymbolsByAddr(addrs)
	if err != nil {
		return err
	}
	for _, arg := range v {
		var sym *elfmeta.Symbol
		var addr uint64
		if isAddress(arg) {
			sym, byAddr = byAddr[0], byAddr[1:]
			addr, _ = intconv.ParseAddress(arg)
		} else {
			sym, byName = byName[0], byName[1:]
		}
		switch {
		case sym == nil:
			fmt.Fprintf(t.stdout, "%s: %s\n", arg, t.highlight("not found", ansiRed))
		case isAddress(arg):
			fmt.Fprintf(t.stdout, "%s: %s+%#x\n\t%s\n", arg, t.highlight(sym.Name, ansiYellow), addr-sym.Addr, sym)
		default:
			fmt.Fprintf(t.stdout, "%s: %s\n", t.highlight(arg, ansiYellow), sym)
		}
	}
	return nil
}

func secCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	v, names, addrs, err := splitQuery(args)
	if err != nil {
		return err
	}
	byName, err := f.SectionsByName(names)
	if err != nil {
		return err
	}
	byAddr, err := f.SectionsByAddr(addrs)
	if err != nil {
		return err
	}
	for _, arg := range v {
		var sec *elfmeta.Section
		if isAddress(arg) {
			sec, byAddr = byAddr[0], byAddr[1:]
		} else {
			sec, byName = byName[0], byName[1:]
		}
		if sec == nil {
			fmt.Fprintf(t.stdout, "%s: %s\n", arg, t.highlight("not found", ansiRed))
			continue
		}
		fmt.Fprintf(t.stdout, "%s: %s\n", t.highlight(arg, ansiGreen), sec)
	}
	return nil
}

func offsetCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) == 0 {
		return errors.New("not enough arguments")
	}
	vaddrs := make([]uint64, len(v))
	for i := range v {
		if vaddrs[i], _, err = t.location(v[i]); err != nil {
			return err
		}
	}
	offs, err := f.VAddrsToOffsets(vaddrs)
	if err != nil {
		return err
	}
	for i := range v {
		fmt.Fprintf(t.stdout, "%s: %#x -> file offset %#x\n", v[i], vaddrs[i], offs[i])
	}
	return nil
}

func extractCommand(t *Term, args string) error {
	f, err := t.image()
	if err != nil {
		return err
	}
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 3 {
		return errors.New("wrong number of arguments: extract <address> <size> <output file>")
	}
	addr, _, err := t.location(v[0])
	if err != nil {
		return err
	}
	size, err := parseSize(v[1])
	if err != nil {
		return err
	}
	if err := extract.Extract(f, addr, size, v[2]); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%#x bytes at %#x written to %s\n", size, addr, v[2])
	return nil
}

// readRange reads the range named by the arguments of hexdump and disasm.
func (t *Term) readRange(args string, usage string, defaultSize uint64) (uint64, []byte, error) {
	f, err := t.image()
	if err != nil {
		return 0, nil, err
	}
	v, err := splitArgs(args)
	if err != nil {
		return 0, nil, err
	}
	if len(v) < 1 || len(v) > 2 {
		return 0, nil, fmt.Errorf("wrong number of arguments: %s", usage)
	}
	addr, sym, err := t.location(v[0])
	if err != nil {
		return 0, nil, err
	}
	size := defaultSize
	if len(v) == 2 {
		if size, err = parseSize(v[1]); err != nil {
			return 0, nil, err
		}
	} else if sym != nil && sym.Size > 0 && addr < sym.Addr+sym.Size {
		size = sym.Addr + sym.Size - addr
	}
	if size > maxReadSize {
		return 0, nil, fmt.Errorf("read range must be less than or equal to %d bytes", maxReadSize)
	}
	buf, err := extract.Read(f, addr, size)
	return addr, buf, err
}

func hexdumpCommand(t *Term, args string) error {
	addr, buf, err := t.readRange(args, "hexdump <address> [<size>]", 64)
	if err != nil {
		return err
	}
	t.stdout.pw.PageMaybe()
	bw := bufio.NewWriter(t.stdout)
	for off := 0; off < len(buf); off += 16 {
		end := off + 16
		if end > len(buf) {
			end = len(buf)
		}
		line := hex.Dump(buf[off:end])
		// hex.Dump numbers lines from zero, replace it with the address
		fmt.Fprintf(bw, "%#016x%s", addr+uint64(off), strings.TrimPrefix(line, "00000000"))
	}
	return bw.Flush()
}

func disasmCommand(t *Term, args string) error {
	addr, buf, err := t.readRange(args, "disasm <address> [<size>]", defaultDisasmSize)
	if err != nil {
		return err
	}
	h, err := t.file.Header()
	if err != nil {
		return err
	}
	arch := h.Arch()
	if arch == "" {
		return fmt.Errorf("disassembly not supported for machine %q", h.Machine)
	}
	flavour := disasm.GNUFlavour
	if t.conf.DisassembleFlavor != nil {
		if flavour, err = disasm.ParseFlavour(*t.conf.DisassembleFlavor); err != nil {
			return err
		}
	}
	insts, err := disasm.Disassemble(arch, buf, addr, flavour, disasm.Symbols(t.file))
	if err != nil {
		return err
	}
	t.stdout.pw.PageMaybe()
	disasmPrint(t, insts)
	return nil
}

func (c *Commands) sourceCommand(t *Term, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}

	if filepath.Ext(args) == ".star" {
		_, err := t.starlarkEnv.Execute(args, nil, "main", nil)
		return err
	}

	if args == "-" {
		return t.starlarkEnv.REPL()
	}

	return c.executeFile(t, args)
}

// ExitRequestError is returned when the user
// exits the terminal.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
