// Package source reads the source files named by the debug information so
// that stop locations can be shown with their text.
package source

import (
	"bufio"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru"

	"github.com/deet-dbg/deet/pkg/logflags"
)

// DefaultCacheSize is the number of files kept in memory.
const DefaultCacheSize = 16

// NoLineError is returned for a line past the end of the file.
type NoLineError struct {
	File string
	Line int
}

func (n NoLineError) Error() string {
	return fmt.Sprintf("could not find line %s:%d", n.File, n.Line)
}

// Cache holds the lines of the most recently used source files.
type Cache struct {
	files *lru.Cache
}

// New returns a Cache holding up to size files.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	files, err := lru.New(size)
	if err != nil {
		// lru.New only fails for non positive sizes.
		panic(err)
	}
	return &Cache{files: files}
}

// Lines returns every line of file, without line terminators.
func (c *Cache) Lines(file string) ([]string, error) {
	if v, ok := c.files.Get(file); ok {
		return v.([]string), nil
	}
	lines, err := readLines(file)
	if err != nil {
		return nil, err
	}
	logflags.DebuggerLogger().Debugf("cached %d lines of %s", len(lines), file)
	c.files.Add(file, lines)
	return lines, nil
}

// Line returns line n (1-based) of file.
func (c *Cache) Line(file string, n int) (string, error) {
	lines, err := c.Lines(file)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(lines) {
		return "", NoLineError{File: file, Line: n}
	}
	return lines[n-1], nil
}

func readLines(file string) ([]string, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	var lines []string
	s := bufio.NewScanner(fh)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	return lines, s.Err()
}
