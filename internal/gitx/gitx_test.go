package gitx

import (
	"context"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if ok, _ := Available(); !ok {
		t.Skip("git not installed")
	}
}

func TestRun_InitAndStatus(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	ctx := context.Background()

	if _, err := RunIn(ctx, dir, "init", "-q", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	out, err := Run(ctx, dir, "status", "--porcelain")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if out != "" {
		t.Fatalf("status=%q, want empty", out)
	}
}

func TestRun_ErrorIncludesOutput(t *testing.T) {
	requireGit(t)
	_, err := Run(context.Background(), t.TempDir(), "rev-parse", "HEAD")
	if err == nil {
		t.Fatal("expected error outside a repository")
	}
	if !strings.Contains(err.Error(), "rev-parse") {
		t.Fatalf("err=%v, want command in message", err)
	}
}

func TestIsNetworkFailure(t *testing.T) {
	cases := []struct {
		out  string
		want bool
	}{
		{"fatal: unable to access 'https://x/': Could not resolve host: x", true},
		{"ssh: connect to host example.com port 22: Connection refused", true},
		{"fatal: Could not read from remote repository.", true},
		{"fatal: not a git repository", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsNetworkFailure(c.out); got != c.want {
			t.Fatalf("IsNetworkFailure(%q)=%v, want %v", c.out, got, c.want)
		}
	}
}
