package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLine(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.go", "package main\n\nfunc main() {\n}\n")
	c := New(2)

	l, err := c.Line(path, 3)
	require.NoError(t, err)
	assert.Equal(t, "func main() {", l)

	l, err = c.Line(path, 2)
	require.NoError(t, err)
	assert.Equal(t, "", l)

	_, err = c.Line(path, 5)
	var nle NoLineError
	assert.ErrorAs(t, err, &nle)
	_, err = c.Line(path, 0)
	assert.ErrorAs(t, err, &nle)
}

func TestLinesAreCached(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "one\ntwo\n")
	c := New(2)

	_, err := c.Lines(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	l, err := c.Line(path, 2)
	require.NoError(t, err)
	assert.Equal(t, "two", l)
}

func TestEviction(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "a\n")
	b := writeFile(t, dir, "b.go", "b\n")
	cc := writeFile(t, dir, "c.go", "c\n")
	c := New(2)

	for _, path := range []string{a, b, cc} {
		_, err := c.Lines(path)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.files.Len())

	// a was evicted and is read again from disk.
	require.NoError(t, os.Remove(a))
	_, err := c.Lines(a)
	assert.Error(t, err)
}

func TestMissingFile(t *testing.T) {
	c := New(0)
	_, err := c.Line(filepath.Join(t.TempDir(), "nope.go"), 1)
	assert.True(t, os.IsNotExist(err))
}
