package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "rc1", Build: "abcdef"}
	if got := v.String(); got != "Version: 1.2.3-rc1\nBuild: abcdef" {
		t.Fatalf("unexpected version %q", got)
	}
	if !strings.HasPrefix(KmetaVersion.String(), "Version: "+KmetaVersion.Major+".") {
		t.Fatalf("unexpected version %q", KmetaVersion.String())
	}
}

func TestBuildInfo(t *testing.T) {
	if !strings.HasPrefix(BuildInfo(), "go") {
		t.Fatalf("build info does not start with the go version: %q", BuildInfo())
	}
}

func TestFormatBuildInfo(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/go-delve/kmeta"},
		Deps: []*debug.Module{
			{Path: "go.starlark.net", Version: "v0.0.0-20220816155156-cfacd8902214"},
			{Path: "github.com/spf13/cobra", Version: "v1.1.3"},
			{Path: "github.com/go-delve/liner", Version: "v1.2.3", Replace: &debug.Module{Path: "../liner"}},
		},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123abcd"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	want := "github.com/go-delve/kmeta (devel)\n" +
		"built from 0123abcd (2026-10-01T12:00:00Z), modified\n" +
		"  github.com/go-delve/liner v1.2.3 => ../liner (devel)\n" +
		"  github.com/spf13/cobra    v1.1.3\n" +
		"  go.starlark.net           v0.0.0-20220816155156-cfacd8902214\n"
	if got := formatBuildInfo(info); got != want {
		t.Fatalf("unexpected build info:\n%s\nexpected:\n%s", got, want)
	}
	if info.Deps[0].Path != "go.starlark.net" {
		t.Fatalf("dependencies of the build info were reordered")
	}

	info.Settings = nil
	if got := formatBuildInfo(info); strings.Contains(got, "built from") {
		t.Fatalf("unexpected revision line without vcs settings:\n%s", got)
	}
}
