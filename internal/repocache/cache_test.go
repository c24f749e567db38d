package repocache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"bctx/internal/gitx"
	"bctx/internal/registry"
)

func requireGit(t *testing.T) {
	t.Helper()
	if ok, _ := gitx.Available(); !ok {
		t.Skip("git not installed")
	}
}

// makeOrigin builds a local repository with one commit on main.
func makeOrigin(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	run := func(args ...string) {
		t.Helper()
		if _, err := gitx.Run(ctx, dir, args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}
	if _, err := gitx.RunIn(ctx, dir, "init", "-q", "-b", "main", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestEnsureFresh_ClonesThenFetches(t *testing.T) {
	requireGit(t)
	origin := makeOrigin(t)
	cache := New(t.TempDir())
	res := registry.Resource{Name: "demo", Origin: origin, Branch: "main"}
	ctx := context.Background()

	path, err := cache.EnsureFresh(ctx, res)
	if err != nil {
		t.Fatalf("EnsureFresh (clone): %v", err)
	}
	if path != cache.Path("demo") {
		t.Fatalf("path=%q", path)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		t.Fatalf("clone missing: %v", err)
	}

	// second call takes the fetch path
	if _, err := cache.EnsureFresh(ctx, res); err != nil {
		t.Fatalf("EnsureFresh (fetch): %v", err)
	}
	if _, err := gitx.Run(ctx, path, "rev-parse", "origin/main"); err != nil {
		t.Fatalf("origin/main unresolved: %v", err)
	}
}

func TestEnsureFresh_ConcurrentCallsShareOne(t *testing.T) {
	requireGit(t)
	origin := makeOrigin(t)
	cache := New(t.TempDir())
	res := registry.Resource{Name: "demo", Origin: origin, Branch: "main"}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.EnsureFresh(context.Background(), res)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestEnsureFresh_UsesStaleCloneWhenRemoteUnreachable(t *testing.T) {
	requireGit(t)
	origin := makeOrigin(t)
	cache := New(t.TempDir())
	res := registry.Resource{Name: "demo", Origin: origin, Branch: "main"}
	ctx := context.Background()

	path, err := cache.EnsureFresh(ctx, res)
	if err != nil {
		t.Fatalf("EnsureFresh (clone): %v", err)
	}

	if err := os.RemoveAll(origin); err != nil {
		t.Fatalf("remove origin: %v", err)
	}

	stale, err := cache.EnsureFresh(ctx, res)
	if err != nil {
		t.Fatalf("EnsureFresh (unreachable origin): %v", err)
	}
	if stale != path {
		t.Fatalf("path=%q, want %q", stale, path)
	}
	if _, err := gitx.Run(ctx, stale, "rev-parse", "origin/main"); err != nil {
		t.Fatalf("stale refs unusable: %v", err)
	}
}

func TestEnsureFresh_OriginMismatchIsCorrupt(t *testing.T) {
	requireGit(t)
	origin := makeOrigin(t)
	cache := New(t.TempDir())
	ctx := context.Background()

	if _, err := cache.EnsureFresh(ctx, registry.Resource{Name: "demo", Origin: origin}); err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}

	_, err := cache.EnsureFresh(ctx, registry.Resource{Name: "demo", Origin: origin + "-moved"})
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("err=%v, want CorruptError", err)
	}
}

func TestEnsureFresh_NonRepoEntryIsCorrupt(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	cache := New(root)
	if err := os.MkdirAll(filepath.Join(root, "demo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := cache.EnsureFresh(context.Background(), registry.Resource{Name: "demo", Origin: "https://example.com/x.git"})
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("err=%v, want CorruptError", err)
	}
}

func TestRebuild_ReplacesCorruptEntry(t *testing.T) {
	requireGit(t)
	origin := makeOrigin(t)
	root := t.TempDir()
	cache := New(root)
	if err := os.MkdirAll(filepath.Join(root, "demo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path, err := cache.Rebuild(context.Background(), registry.Resource{Name: "demo", Origin: origin})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		t.Fatalf("rebuilt clone missing: %v", err)
	}
}

func TestEnsureFresh_FailedCloneLeavesNoEntry(t *testing.T) {
	requireGit(t)
	cache := New(t.TempDir())
	res := registry.Resource{Name: "demo", Origin: filepath.Join(t.TempDir(), "does-not-exist")}

	if _, err := cache.EnsureFresh(context.Background(), res); err == nil {
		t.Fatal("expected clone failure")
	}
	if _, err := os.Stat(cache.Path("demo")); !os.IsNotExist(err) {
		t.Fatalf("partial clone left behind: %v", err)
	}
}
