//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCreatesProcessGroup(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	Set(cmd)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = KillGroup(cmd.Process.Pid, 100*time.Millisecond)
		_ = cmd.Wait()
	}()

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	assert.Equal(t, cmd.Process.Pid, pgid, "child should lead its own group")
}

func TestKillGroupTerminatesChild(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	require.NoError(t, KillGroup(cmd.Process.Pid, time.Second))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		assert.Error(t, err, "sleep should have been signalled")
	case <-time.After(3 * time.Second):
		t.Fatal("process not reaped after KillGroup")
	}
}

func TestKillGroupAlreadyGone(t *testing.T) {
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	assert.NoError(t, KillGroup(cmd.Process.Pid, 50*time.Millisecond))
}

func TestKillGroupInvalidPID(t *testing.T) {
	assert.NoError(t, KillGroup(0, time.Millisecond))
	assert.NoError(t, KillGroup(-1, time.Millisecond))
}
