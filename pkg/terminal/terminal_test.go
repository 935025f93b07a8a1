package terminal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-delve/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteCommands(t *testing.T) {
	ft := newFakeTerminal(nil)
	assert.Equal(t, []string{"b", "back", "backtrace", "bp", "break", "breakpoints", "bt"}, ft.complete("b"))
	assert.Equal(t, []string{"c", "cont", "continue"}, ft.complete("c"))
	assert.Empty(t, ft.complete("z"))
}

func TestCompleteFunctions(t *testing.T) {
	ft := newFakeTerminal(nil)
	assert.Equal(t, []string{"break main.leaf", "break main.main", "break main.middle"}, ft.complete("break main."))
	assert.Equal(t, []string{"b leaf"}, ft.complete("b le"))
	assert.Equal(t, []string{"b runtime.main"}, ft.complete("b runtime"))
	assert.Empty(t, ft.complete("continue ma"))
}

func TestFunctionIndexKeepsFirstShortName(t *testing.T) {
	idx := functionIndex([]string{"main.main", "runtime.main"})
	node, ok := idx.Find("main")
	assert.True(t, ok)
	assert.Equal(t, "main.main", node.Meta())
}

func TestSaveHistoryAfterEachLine(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEET_CONFIG_DIR", dir)
	ft := newFakeTerminal(nil)
	ft.line = liner.NewLiner()
	defer ft.Close()

	ft.line.AppendHistory("break leaf")
	require.NoError(t, ft.saveHistory())
	data, err := os.ReadFile(filepath.Join(dir, historyFile))
	require.NoError(t, err)
	assert.Equal(t, "break leaf\n", string(data))

	ft.line.AppendHistory("run")
	require.NoError(t, ft.saveHistory())
	data, err = os.ReadFile(filepath.Join(dir, historyFile))
	require.NoError(t, err)
	assert.Equal(t, "break leaf\nrun\n", string(data))
}
