package cmds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/go-delve/kmeta/pkg/config"
	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/logflags"
	"github.com/go-delve/kmeta/pkg/readelf"
	"github.com/go-delve/kmeta/pkg/terminal"
	"github.com/go-delve/kmeta/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// readelfPath is the readelf executable, overriding the configuration file.
	readelfPath string
	// bound overrides the containment-bound configuration option.
	bound boundValue
	// initFile is the path to initialization file.
	initFile string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const kmetaCommandLongDesc = `kmeta answers questions about the layout of ELF kernel images.

kmeta reads the section table, the symbol table and the relocation entries of
an image through readelf and resolves names to addresses, addresses to the
symbols and sections containing them and virtual addresses to file offsets.
It can also copy, dump and disassemble ranges of the image.

Tables are read once per image and kept in memory, the interactive terminal
(kmeta repl) is the best way to ask many questions about the same image.`

// boundValue is a pflag.Value selecting the containment bound of lookups.
type boundValue struct {
	b   elfmeta.Bound
	set bool
}

var _ pflag.Value = &boundValue{}

func (v *boundValue) String() string {
	return v.b.String()
}

func (v *boundValue) Set(s string) error {
	b, err := elfmeta.ParseBound(s)
	if err != nil {
		return err
	}
	v.b, v.set = b, true
	return nil
}

func (v *boundValue) Type() string {
	return "bound"
}

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load. Generating documentation must not create the
	// configuration directory.
	if docCall {
		conf = &config.Config{}
	} else {
		conf = config.LoadConfig()
	}
	bound = boundValue{}

	// Main kmeta root command.
	rootCommand = &cobra.Command{
		Use:           "kmeta",
		Short:         "kmeta is a metadata browser for ELF kernel images.",
		Long:          kmetaCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(log, logOutput, logDest)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'kmeta help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'kmeta help log').")
	rootCommand.PersistentFlags().StringVar(&readelfPath, "readelf", "", "Path of the readelf executable, overrides the configuration file.")
	rootCommand.PersistentFlags().Var(&bound, "bound", `Containment bound of address lookups, "inclusive" or "exclusive".`)

	// 'sections' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "sections <image> [regex]",
		Short: "Prints the section table.",
		Long: `Prints the section table of the image.

If regex is specified only the sections whose name matches it are printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: imageCmd("sections"),
	})

	// 'symbols' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "symbols <image> [regex]",
		Short: "Prints the symbol table.",
		Long: `Prints the symbol table of the image.

If regex is specified only the symbols whose name matches it are printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: imageCmd("symbols"),
	})

	// 'relocs' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "relocs <image> [start end]",
		Short: "Prints relocation addresses.",
		Long: `Prints the addresses patched by the relocation entries of the image.

With a start and an end address only the relocations between them, inclusive,
are printed.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return errors.New("you must provide an image and optionally a start and an end address")
			}
			return nil
		},
		RunE: imageCmd("relocs"),
	})

	// 'symbol' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "symbol <image> <name|address>...",
		Short: "Looks up symbols by name or address.",
		Long: `Looks up symbols by name or address.

Arguments starting with 0x are addresses and resolve to the symbol containing
them, any other argument is a symbol name.`,
		Args: cobra.MinimumNArgs(2),
		RunE: imageCmd("sym"),
	})

	// 'section' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "section <image> <name|address>...",
		Short: "Looks up sections by name or address.",
		Args:  cobra.MinimumNArgs(2),
		RunE:  imageCmd("sec"),
	})

	// 'offset' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "offset <image> <address|symbol[+offset]>...",
		Short: "Translates virtual addresses to file offsets.",
		Args:  cobra.MinimumNArgs(2),
		RunE:  imageCmd("offset"),
	})

	// 'extract' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "extract <image> <address|symbol[+offset]> <size> <output file>",
		Short: "Copies a range of the image to a file.",
		Args:  cobra.ExactArgs(4),
		RunE:  imageCmd("extract"),
	})

	// 'hexdump' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "hexdump <image> <address|symbol[+offset]> [size]",
		Short: "Prints a range of the image in hexadecimal.",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  imageCmd("hexdump"),
	})

	// 'disasm' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "disasm <image> <address|symbol[+offset]> [size]",
		Short: "Disassembles a range of the image.",
		Long: `Disassembles a range of the image.

If size is omitted and the range starts at a symbol the whole symbol is
disassembled. The syntax is selected by the disassemble-flavor option of the
configuration file.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: imageCmd("disasm"),
	})

	// 'header' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "header <image>",
		Short: "Prints the ELF file header.",
		Args:  cobra.ExactArgs(1),
		RunE:  imageCmd("header"),
	})

	// 'repl' subcommand.
	replCommand := &cobra.Command{
		Use:   "repl [image]",
		Short: "Starts the interactive terminal.",
		Long: `Starts the interactive terminal.

If no image is given one must be selected with the file command. Type 'help'
in the terminal for the list of commands.`,
		Args: cobra.MaximumNArgs(1),
		Run:  replCmd,
	}
	replCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed by the terminal.")
	rootCommand.AddCommand(replCommand)

	// 'version' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kmeta\n%s\n", version.KmetaVersion)
			if log {
				fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			}
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	store		Log loading of tables and lookups
	readelf		Log readelf invocations
	extract		Log reads of the image
	terminal	Log terminal commands

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// openImage binds path using the readelf executable and the lookup
// options selected by the command line and the configuration file.
func openImage(path string) (*elfmeta.File, error) {
	tool := conf.Readelf
	if readelfPath != "" {
		tool = readelfPath
	}

	b := bound.b
	if !bound.set {
		var err error
		b, err = elfmeta.ParseBound(conf.ContainmentBound)
		if err != nil {
			return nil, fmt.Errorf("containment-bound in configuration file: %w", err)
		}
	}

	opts := []elfmeta.Option{elfmeta.WithBound(b)}
	if conf.LookupCacheSize != nil {
		opts = append(opts, elfmeta.WithCacheSize(*conf.LookupCacheSize))
	}
	return elfmeta.New(path, readelf.New(tool), opts...)
}

// imageCmd returns the run function of a subcommand that opens the image
// named by its first argument and executes the terminal command name with
// the remaining arguments.
func imageCmd(name string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return err
		}
		f, err := openImage(args[0])
		if err != nil {
			return err
		}
		term := terminal.New(f, openImage, conf)
		return term.Call(name + " " + quoteArgs(args[1:]))
	}
}

// quoteArgs joins args so that the terminal splits them back into the same
// list. A single argument is passed verbatim, the filters of sections and
// symbols are regular expressions that are not split.
func quoteArgs(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	v := make([]string, len(args))
	for i, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t") {
			arg = `"` + arg + `"`
		}
		v[i] = arg
	}
	return strings.Join(v, " ")
}

func replCmd(cmd *cobra.Command, args []string) {
	os.Exit(repl(args))
}

func repl(args []string) int {
	var f *elfmeta.File
	if len(args) > 0 {
		if _, err := os.Stat(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		var err error
		f, err = openImage(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	term := terminal.New(f, openImage, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	logflags.Close()
	return status
}
