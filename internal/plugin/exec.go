package plugin

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// RunResult captures one external tool invocation.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration

	// TimedOut is set when the context expired or was cancelled before the
	// tool finished. The child process group has already been killed.
	TimedOut bool
}

// Run executes an external tool in dir and waits for it to finish. The
// command runs in its own process group so cancellation kills the tool and
// any children it spawned, never leaving orphans behind.
//
// A nonzero exit code is returned in RunResult, not as an error; callers own
// their tool's exit-code semantics. The error return is reserved for "could
// not run at all" conditions (binary missing, permission denied).
func Run(ctx context.Context, dir, bin string, args ...string) (*RunResult, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	setProcessGroup(cmd)
	// Give the tool a grace period to flush output after the kill signal.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := &RunResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, err
	}

	return res, nil
}
