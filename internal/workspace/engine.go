// Package workspace materialises composite workspaces: one directory
// per repository set, each member a detached git worktree off the
// shared clone cache.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"bctx/internal/gitx"
	"bctx/internal/query"
	"bctx/internal/registry"
	"bctx/internal/repocache"
)

// MissingError reports a clear of a workspace that does not exist.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("workspace %q does not exist", e.Key)
}

// Workspace is a ready-to-use composite directory.
type Workspace struct {
	Key     string
	Dir     string
	Members []registry.Resource
}

// Engine builds and tears down workspaces. All operations on the same
// key are serialised; different keys proceed independently.
type Engine struct {
	root  string
	cache *repocache.Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	Logf func(format string, args ...any)
}

func NewEngine(root string, cache *repocache.Cache) *Engine {
	return &Engine{
		root:  root,
		cache: cache,
		locks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

func (e *Engine) keyLock(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// Dir returns where a workspace key lives, whether or not it exists.
func (e *Engine) Dir(key string) string {
	return filepath.Join(e.root, key)
}

// Ensure returns a usable workspace for the given resource set,
// creating it if needed. All member clones are refreshed first, in
// parallel. A workspace with a missing member directory is torn down
// and rebuilt; a partially built workspace is never left behind.
func (e *Engine) Ensure(ctx context.Context, members []registry.Resource) (Workspace, error) {
	if len(members) == 0 {
		return Workspace{}, fmt.Errorf("workspace requires at least one repository")
	}
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	key, err := query.WorkspaceKey(names)
	if err != nil {
		return Workspace{}, err
	}
	sorted := append([]registry.Resource(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range sorted {
		m := m
		g.Go(func() error {
			_, err := e.cache.EnsureFresh(gctx, m)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Workspace{}, err
	}

	dir := e.Dir(key)
	if _, err := os.Stat(dir); err == nil {
		if e.membersPresent(dir, sorted) {
			return Workspace{Key: key, Dir: dir, Members: sorted}, nil
		}
		e.logf("workspace %s incomplete, rebuilding", key)
		if err := e.teardown(ctx, key, sorted); err != nil {
			return Workspace{}, err
		}
	}

	if err := e.build(ctx, key, dir, sorted); err != nil {
		return Workspace{}, err
	}
	return Workspace{Key: key, Dir: dir, Members: sorted}, nil
}

func (e *Engine) membersPresent(dir string, members []registry.Resource) bool {
	for _, m := range members {
		if _, err := os.Stat(filepath.Join(dir, m.Name, ".git")); err != nil {
			return false
		}
	}
	return true
}

func (e *Engine) build(ctx context.Context, key, dir string, members []registry.Resource) error {
	e.logf("building workspace %s", key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create workspace %q: %w", key, err)
	}
	for _, m := range members {
		target := filepath.Join(dir, m.Name)
		ref := "origin/" + m.Branch
		if _, err := gitx.Run(ctx, e.cache.Path(m.Name), "worktree", "add", "--detach", target, ref); err != nil {
			// all-or-nothing: undo everything built so far
			e.teardown(ctx, key, members)
			return fmt.Errorf("add worktree for %q at %s: %w", m.Name, ref, err)
		}
	}
	return nil
}

// teardown detaches every member worktree from its clone and removes
// the workspace directory. Tolerates partially built state.
func (e *Engine) teardown(ctx context.Context, key string, members []registry.Resource) error {
	dir := e.Dir(key)
	for _, m := range members {
		cachePath := e.cache.Path(m.Name)
		if _, err := os.Stat(cachePath); err != nil {
			continue
		}
		target := filepath.Join(dir, m.Name)
		if _, err := os.Stat(target); err == nil {
			gitx.Run(ctx, cachePath, "worktree", "remove", "--force", target)
		}
		// a member deleted out-of-band leaves its registration behind
		// in the clone; prune it or the next add refuses the path
		gitx.Run(ctx, cachePath, "worktree", "prune")
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace %q: %w", key, err)
	}
	return nil
}

// List enumerates existing workspace keys, sorted.
func (e *Engine) List() ([]string, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspaces dir: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			keys = append(keys, entry.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes one workspace. The clone cache is untouched.
func (e *Engine) Clear(ctx context.Context, key string) error {
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	dir := e.Dir(key)
	if _, err := os.Stat(dir); err != nil {
		return &MissingError{Key: key}
	}
	members := make([]registry.Resource, 0)
	for _, name := range query.SplitKey(key) {
		members = append(members, registry.Resource{Name: name})
	}
	return e.teardown(ctx, key, members)
}

// ClearAll removes every workspace, continuing past individual
// failures and reporting the first one.
func (e *Engine) ClearAll(ctx context.Context) error {
	keys, err := e.List()
	if err != nil {
		return err
	}
	var first error
	for _, key := range keys {
		if err := e.Clear(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}
