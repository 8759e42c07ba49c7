package main

import (
	"fmt"
	"os"

	"github.com/go-delve/kmeta/cmd/kmeta/cmds"
	"github.com/go-delve/kmeta/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.KmetaVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
