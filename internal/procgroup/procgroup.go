// Package procgroup starts external commands in their own process group so
// that a timeout can reap the whole subprocess tree, not just the direct
// child. The external fetch tool spawns helpers (ffmpeg, fragment workers);
// killing only the leader would orphan them.
package procgroup

import (
	"os/exec"
	"time"
)

// Set configures cmd to start in a new process group. Must be called before
// cmd.Start for KillGroup to work.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// KillGroup terminates the entire process group led by pid: SIGTERM first,
// then SIGKILL once the grace period elapses. An already-exited group is not
// an error. The caller remains responsible for reaping the child via Wait.
func KillGroup(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	return killGroup(pid, grace)
}
