package proc

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassembleMasksTrap(t *testing.T) {
	mem := map[uint64]byte{}
	// push %rbp; mov %rsp,%rbp; nop
	for i, b := range []byte{0x55, 0x48, 0x89, 0xe5, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90} {
		mem[textBase+uint64(i)] = b
	}
	f := newFakeProcess(entryPC, mem)
	bps := NewBreakpointMap()
	bps.Set(textBase)
	inf := startFake(t, f, bps)
	require.Equal(t, BreakpointInstruction, f.mem[textBase])

	inst, err := DisassembleAt(inf, bps, textBase)
	require.NoError(t, err)
	assert.Equal(t, 1, len(inst.Bytes))
	assert.Equal(t, "push %rbp", inst.Text())
	assert.Equal(t, "0x401000:\tpush %rbp", inst.String())

	inst, err = DisassembleAt(inf, bps, textBase+1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x89, 0xe5}, inst.Bytes)
	assert.Equal(t, "mov %rsp,%rbp", inst.Text())
}

func TestDecodeInvalidInstruction(t *testing.T) {
	_, err := decodeInstruction([]byte{0x0f}, 0x1000)
	assert.Error(t, err)
}

func TestSignalNames(t *testing.T) {
	assert.Equal(t, "SIGTRAP", SignalName(syscall.SIGTRAP))
	sig, err := ParseSignal("urg")
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGURG, sig)
	sig, err = ParseSignal("SIGWINCH")
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGWINCH, sig)
	_, err = ParseSignal("SIGNOPE")
	assert.Error(t, err)

	sigs, err := ParseSignals([]string{"SIGCHLD", "prof"})
	require.NoError(t, err)
	assert.Equal(t, []syscall.Signal{syscall.SIGCHLD, syscall.SIGPROF}, sigs)
}

func TestStopEventString(t *testing.T) {
	assert.Equal(t, "Exited(3)", StopEvent{Reason: StopExited, ExitCode: 3}.String())
	assert.Equal(t, "Signaled(SIGKILL)", StopEvent{Reason: StopSignaled, Signal: syscall.SIGKILL}.String())
	assert.Equal(t, "Stopped(SIGTRAP, 0x401000)", StopEvent{Reason: StopStopped, Signal: syscall.SIGTRAP, PC: 0x401000}.String())
	assert.True(t, StopEvent{Reason: StopExited}.Terminal())
	assert.False(t, StopEvent{Reason: StopStopped}.Terminal())
}
