//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-delve/kmeta/cmd/kmeta/cmds"
	"github.com/spf13/cobra/doc"
)

const defaultUsageDir = "./Documentation/usage"

func main() {
	usageDir := defaultUsageDir
	if len(os.Args) > 1 {
		usageDir = os.Args[1]
	}
	if err := os.MkdirAll(usageDir, 0755); err != nil {
		log.Fatal(err)
	}
	if err := doc.GenMarkdownTree(cmds.New(true), usageDir); err != nil {
		log.Fatal(err)
	}
	// GenMarkdownTree ignores additional help topic commands, so we have to do this manually
	cmd, _, _ := cmds.New(true).Find([]string{"log"})
	if err := doc.GenMarkdownTree(cmd, usageDir); err != nil {
		log.Fatal(err)
	}
	fh, err := os.OpenFile(filepath.Join(usageDir, "kmeta.md"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		log.Fatalf("appending to kmeta.md: %v", err)
	}
	defer fh.Close()
	fmt.Fprintln(fh, "* [kmeta log](kmeta_log.md)\t - Help about logging flags")
}
