// Package proc runs external tools (python, maturin, git) and keeps their
// output for error reports.
package proc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// maxOutput bounds how much captured output an Error message repeats.
const maxOutput = 4000

// Error is a failed external command. Output is the combined stdout and
// stderr the command produced before failing.
type Error struct {
	Cmd    string
	Output string
	Err    error
}

func (e *Error) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	if len(out) > maxOutput {
		out = "..." + out[len(out)-maxOutput:]
	}
	return fmt.Sprintf("%s: %v\n%s", e.Cmd, e.Err, out)
}

func (e *Error) Unwrap() error { return e.Err }

// Cmd describes one invocation.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Output runs c and returns its stdout. On failure the returned *Error
// carries both streams.
func Output(ctx context.Context, c Cmd) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &Error{
			Cmd:    c.String(),
			Output: stdout.String() + stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// Combined runs c and returns its interleaved stdout and stderr.
func Combined(ctx context.Context, c Cmd) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, &Error{Cmd: c.String(), Output: string(out), Err: err}
	}
	return out, nil
}

// LookPath reports the first of names found on PATH.
func LookPath(names ...string) (string, bool) {
	for _, n := range names {
		if p, err := exec.LookPath(n); err == nil {
			return p, true
		}
	}
	return "", false
}
