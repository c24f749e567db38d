package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"bctx/internal/gitx"
	"bctx/internal/registry"
	"bctx/internal/repocache"
)

func requireGit(t *testing.T) {
	t.Helper()
	if ok, _ := gitx.Available(); !ok {
		t.Skip("git not installed")
	}
}

func makeOrigin(t *testing.T, file string) string {
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
	if err := os.WriteFile(filepath.Join(dir, file), []byte("content\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func testEngine(t *testing.T) (*Engine, []registry.Resource) {
	t.Helper()
	requireGit(t)
	cache := repocache.New(t.TempDir())
	engine := NewEngine(t.TempDir(), cache)
	members := []registry.Resource{
		{Name: "svelte", Origin: makeOrigin(t, "svelte.txt"), Branch: "main"},
		{Name: "daytona", Origin: makeOrigin(t, "daytona.txt"), Branch: "main"},
	}
	return engine, members
}

func TestEnsure_BuildsComposite(t *testing.T) {
	engine, members := testEngine(t)
	ctx := context.Background()

	ws, err := engine.Ensure(ctx, members)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if ws.Key != "daytona+svelte" {
		t.Fatalf("Key=%q", ws.Key)
	}
	for _, want := range []string{
		filepath.Join(ws.Dir, "svelte", "svelte.txt"),
		filepath.Join(ws.Dir, "daytona", "daytona.txt"),
	} {
		if _, err := os.Stat(want); err != nil {
			t.Fatalf("member file missing: %v", err)
		}
	}
	// member order is canonical regardless of input order
	if ws.Members[0].Name != "daytona" || ws.Members[1].Name != "svelte" {
		t.Fatalf("Members=%v", ws.Members)
	}
}

func TestEnsure_ReusesExisting(t *testing.T) {
	engine, members := testEngine(t)
	ctx := context.Background()

	first, err := engine.Ensure(ctx, members)
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	marker := filepath.Join(first.Dir, "marker")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	second, err := engine.Ensure(ctx, []registry.Resource{members[1], members[0]})
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if second.Dir != first.Dir {
		t.Fatalf("Dir changed: %q vs %q", second.Dir, first.Dir)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("existing workspace was rebuilt: %v", err)
	}
}

func TestEnsure_RebuildsOnMissingMember(t *testing.T) {
	engine, members := testEngine(t)
	ctx := context.Background()

	ws, err := engine.Ensure(ctx, members)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(ws.Dir, "svelte")); err != nil {
		t.Fatalf("remove member: %v", err)
	}

	again, err := engine.Ensure(ctx, members)
	if err != nil {
		t.Fatalf("Ensure after damage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(again.Dir, "svelte", "svelte.txt")); err != nil {
		t.Fatalf("member not rebuilt: %v", err)
	}
}

func TestEnsure_AllOrNothing(t *testing.T) {
	engine, members := testEngine(t)
	ctx := context.Background()

	// second member references a branch that does not exist
	members[1].Branch = "no-such-branch"
	_, err := engine.Ensure(ctx, members)
	if err == nil {
		t.Fatal("expected worktree failure")
	}
	if _, statErr := os.Stat(engine.Dir("daytona+svelte")); !os.IsNotExist(statErr) {
		t.Fatalf("partial workspace left behind: %v", statErr)
	}
}

func TestClear_RemovesWorkspaceKeepsCache(t *testing.T) {
	engine, members := testEngine(t)
	ctx := context.Background()

	ws, err := engine.Ensure(ctx, members)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := engine.Clear(ctx, ws.Key); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("workspace dir survived: %v", err)
	}
	// clones untouched, so a rebuild needs no network
	if _, err := engine.Ensure(ctx, members); err != nil {
		t.Fatalf("Ensure after Clear: %v", err)
	}
}

func TestClear_MissingWorkspace(t *testing.T) {
	requireGit(t)
	engine := NewEngine(t.TempDir(), repocache.New(t.TempDir()))
	err := engine.Clear(context.Background(), "no+such")
	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("err=%v, want MissingError", err)
	}
	if missing.Key != "no+such" {
		t.Fatalf("Key=%q", missing.Key)
	}
}

func TestListAndClearAll(t *testing.T) {
	engine, members := testEngine(t)
	ctx := context.Background()

	if _, err := engine.Ensure(ctx, members); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := engine.Ensure(ctx, members[:1]); err != nil {
		t.Fatalf("Ensure single: %v", err)
	}

	keys, err := engine.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"daytona+svelte", "svelte"}) {
		t.Fatalf("List=%v", keys)
	}

	if err := engine.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	keys, err = engine.List()
	if err != nil {
		t.Fatalf("List after ClearAll: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("List=%v, want empty", keys)
	}
}
