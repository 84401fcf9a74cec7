package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// script writes an executable shell script and returns its path.
func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOutput(t *testing.T) {
	t.Parallel()
	tool := script(t, "echo out\necho err >&2\n")
	out, err := Output(context.Background(), Cmd{Name: tool})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if string(out) != "out\n" {
		t.Errorf("stdout = %q, want %q", out, "out\n")
	}
}

func TestOutputFailureCarriesOutput(t *testing.T) {
	t.Parallel()
	tool := script(t, "echo partial\necho 'boom: bad input' >&2\nexit 3\n")
	_, err := Output(context.Background(), Cmd{Name: tool, Args: []string{"--flag"}})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if pe.Cmd != tool+" --flag" {
		t.Errorf("Cmd = %q", pe.Cmd)
	}
	for _, w := range []string{"partial", "boom: bad input"} {
		if !strings.Contains(err.Error(), w) {
			t.Errorf("error %q missing %q", err.Error(), w)
		}
	}
	var exitErr interface{ ExitCode() int }
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("exit code not reachable through Unwrap: %v", err)
	}
}

func TestCombinedEnv(t *testing.T) {
	t.Parallel()
	tool := script(t, "echo \"$RUSTIFY_TEST_VALUE\"\n")
	out, err := Combined(context.Background(), Cmd{Name: tool, Env: []string{"RUSTIFY_TEST_VALUE=42"}})
	if err != nil {
		t.Fatalf("Combined: %v", err)
	}
	if strings.TrimSpace(string(out)) != "42" {
		t.Errorf("out = %q, want 42", out)
	}
}

func TestMissingExecutable(t *testing.T) {
	t.Parallel()
	_, err := Output(context.Background(), Cmd{Name: filepath.Join(t.TempDir(), "nope")})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if pe.Output != "" {
		t.Errorf("Output = %q, want empty", pe.Output)
	}
}

func TestErrorTruncatesOutput(t *testing.T) {
	t.Parallel()
	e := &Error{Cmd: "x", Output: strings.Repeat("a", maxOutput*2) + "tail", Err: errors.New("exit status 1")}
	msg := e.Error()
	if !strings.HasSuffix(msg, "tail") || len(msg) > maxOutput+100 {
		t.Errorf("unexpected truncation: len=%d", len(msg))
	}
}
