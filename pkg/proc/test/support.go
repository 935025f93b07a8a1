package test

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

// Fixture is a test binary.
type Fixture struct {
	// Name is the short name of the fixture.
	Name string
	// Path is the absolute path to the test binary.
	Path string
	// Source is the absolute path of the test binary source.
	Source string
}

// Fixtures is a map of Fixture.Name to Fixture.
var Fixtures = make(map[string]Fixture)

var fixturesMu sync.Mutex

// FindFixturesDir returns the path of the _fixtures directory, searching
// the parent directories of the working directory.
func FindFixturesDir() string {
	parent := ".."
	fixturesDir := "_fixtures"
	for depth := 0; depth < 10; depth++ {
		if _, err := os.Stat(fixturesDir); err == nil {
			break
		}
		fixturesDir = filepath.Join(parent, fixturesDir)
	}
	return fixturesDir
}

// BuildFixture compiles the fixture name.go with optimizations and inlining
// disabled, so that every function keeps its frame pointer and its own
// line table entries.
func BuildFixture(name string) Fixture {
	fixturesMu.Lock()
	defer fixturesMu.Unlock()
	if f, ok := Fixtures[name]; ok {
		return f
	}

	fixturesDir := FindFixturesDir()

	// Make a (good enough) random temporary file name
	r := make([]byte, 4)
	rand.Read(r)
	path := filepath.Join(fixturesDir, name+".go")
	tmpfile := filepath.Join(os.TempDir(), fmt.Sprintf("deet.%s.%s", name, hex.EncodeToString(r)))

	cmd := exec.Command("go", "build", "-gcflags=all=-N -l", "-o", tmpfile, name+".go")
	cmd.Dir = fixturesDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

	// Build the test binary
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("Error compiling %s: %s\n%s\n", path, err, out)
		os.Exit(1)
	}

	source, _ := filepath.Abs(path)
	source = filepath.ToSlash(source)

	Fixtures[name] = Fixture{Name: name, Path: tmpfile, Source: source}
	return Fixtures[name]
}

// RunTestsWithFixtures will pre-compile test fixtures before running test
// methods. Test binaries are deleted before exiting.
func RunTestsWithFixtures(m *testing.M) int {
	status := m.Run()

	// Remove the fixtures.
	for _, f := range Fixtures {
		os.Remove(f.Path)
	}
	return status
}

// Line returns the line of the fixture source containing marker, failing
// the test if there is none. Fixtures tag interesting lines with comments
// so tests do not depend on line numbers.
func (f Fixture) Line(t testing.TB, marker string) int {
	t.Helper()
	fh, err := os.Open(f.Source)
	if err != nil {
		t.Fatalf("opening fixture source: %v", err)
	}
	defer fh.Close()
	s := bufio.NewScanner(fh)
	for n := 1; s.Scan(); n++ {
		if strings.Contains(s.Text(), marker) {
			return n
		}
	}
	t.Fatalf("marker %q not found in %s", marker, f.Source)
	return 0
}

// MustSupportPtrace skips the test on platforms the native backend does not
// implement.
func MustSupportPtrace(t testing.TB) {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("native backend not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}
