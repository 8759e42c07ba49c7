package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigParses(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDefaultConfig(&buf); err != nil {
		t.Fatal(err)
	}
	c, err := readConfig(&buf)
	if err != nil {
		t.Fatalf("default configuration does not parse: %v", err)
	}
	if c.Readelf != "" || c.ContainmentBound != "" || c.LookupCacheSize != nil || c.DisassembleFlavor != nil || c.MaxRelocations != nil {
		t.Fatalf("default configuration should leave every option unset: %#v", c)
	}
}

func TestReadConfig(t *testing.T) {
	c, err := readConfig(bytes.NewBufferString(`
readelf: /opt/cross/bin/aarch64-linux-gnu-readelf
containment-bound: exclusive
lookup-cache-size: 0
disassemble-flavor: intel
max-relocations: 10
aliases:
  sym: ["s"]
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Readelf != "/opt/cross/bin/aarch64-linux-gnu-readelf" {
		t.Errorf("readelf: %q", c.Readelf)
	}
	if c.ContainmentBound != "exclusive" {
		t.Errorf("containment-bound: %q", c.ContainmentBound)
	}
	if c.LookupCacheSize == nil || *c.LookupCacheSize != 0 {
		t.Errorf("lookup-cache-size: %v", c.LookupCacheSize)
	}
	if c.DisassembleFlavor == nil || *c.DisassembleFlavor != "intel" {
		t.Errorf("disassemble-flavor: %v", c.DisassembleFlavor)
	}
	if c.MaxRelocations == nil || *c.MaxRelocations != 10 {
		t.Errorf("max-relocations: %v", c.MaxRelocations)
	}
	if len(c.Aliases["sym"]) != 1 || c.Aliases["sym"][0] != "s" {
		t.Errorf("aliases: %v", c.Aliases)
	}
}

func TestLoadAndSaveConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KMETA_CONFIG_DIR", dir)

	c := LoadConfig()
	if _, err := os.Stat(filepath.Join(dir, configFile)); err != nil {
		t.Fatalf("default configuration was not written: %v", err)
	}
	if c.Readelf != "" {
		t.Fatalf("unexpected readelf %q", c.Readelf)
	}

	c.Readelf = "llvm-readelf"
	if err := SaveConfig(c); err != nil {
		t.Fatal(err)
	}
	if got := LoadConfig().Readelf; got != "llvm-readelf" {
		t.Fatalf("saved option not loaded back, got %q", got)
	}
}
