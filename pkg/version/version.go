// Package version describes the running deet binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is a deet release.
type Version struct {
	Major, Minor, Patch int
	Metadata            string
	// Build is the commit the binary was built from. When empty it is
	// taken from the VCS information stamped by the go command.
	Build string
}

// DeetVersion is the current version of deet.
var DeetVersion = Version{Major: 0, Minor: 3, Patch: 0}

func (v Version) String() string {
	ver := fmt.Sprintf("Version: %d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	build := v.Build
	if build == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			build = revision(info)
		}
	}
	if build == "" {
		return ver
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, build)
}

// BuildInfo describes the binary: the toolchain and platform it was built
// for, the deet module and every module linked into it.
func BuildInfo() string {
	info, _ := debug.ReadBuildInfo()
	return describe(info)
}

func describe(info *debug.BuildInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if info == nil {
		b.WriteString("\nnot built in module mode")
		return b.String()
	}
	fmt.Fprintf(&b, "\n%s %s", info.Main.Path, info.Main.Version)
	if rev := revision(info); rev != "" {
		fmt.Fprintf(&b, " (%s)", rev)
	}
	for _, dep := range info.Deps {
		fmt.Fprintf(&b, "\n  %s %s", dep.Path, dep.Version)
		if r := dep.Replace; r != nil {
			fmt.Fprintf(&b, " => %s %s", r.Path, r.Version)
		}
	}
	return b.String()
}

// revision returns the VCS revision recorded in info, marked when the
// working tree had local changes.
func revision(info *debug.BuildInfo) string {
	var rev string
	modified := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if rev != "" && modified {
		rev += "+dirty"
	}
	return rev
}
