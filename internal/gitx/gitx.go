// Package gitx shells out to the system git binary. Clones, fetches and
// worktree management all go through Run so error reporting stays uniform.
package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Run executes git with -C dir and returns the combined output. On
// failure the output is folded into the error so callers can classify
// it (network failures, port clashes, corrupt repos).
func Run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{"-C", dir}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, text)
	}
	return text, nil
}

// RunIn is Run without the -C flag, for commands that create dir itself
// (clone into a fresh path).
func RunIn(ctx context.Context, workdir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workdir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, text)
	}
	return text, nil
}

var (
	availOnce sync.Once
	available bool
	version   string
)

// Available reports whether a usable git binary is on PATH. Detection
// runs once per process.
func Available() (bool, string) {
	availOnce.Do(func() {
		out, err := exec.Command("git", "--version").Output()
		if err != nil {
			return
		}
		available = true
		version = strings.TrimSpace(string(out))
	})
	return available, version
}

// IsNetworkFailure classifies git output that indicates the remote was
// unreachable rather than the local repository being broken.
func IsNetworkFailure(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range []string{
		"could not resolve host",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"failed to connect",
		"network is unreachable",
		"remote end hung up",
		"early eof",
		"could not read from remote repository",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
