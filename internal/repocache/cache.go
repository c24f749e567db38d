// Package repocache keeps one clone per registered repository under a
// shared root. Concurrent refreshes of the same repository collapse
// into a single git invocation.
package repocache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"bctx/internal/gitx"
	"bctx/internal/registry"
)

// NetworkError reports a remote that could not be reached while no
// usable clone exists locally. With an intact clone the fetch failure
// is only logged and the stale clone stays in service.
type NetworkError struct {
	Name string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("repository %q: remote unreachable: %v", e.Name, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CorruptError reports a cache entry that is not a usable clone of the
// registered origin.
type CorruptError struct {
	Name   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("repository %q: cache corrupt: %s", e.Name, e.Reason)
}

// Cache is the clone store. Logf, when set, receives progress lines.
type Cache struct {
	root  string
	group singleflight.Group
	Logf  func(format string, args ...any)
}

func New(root string) *Cache {
	return &Cache{root: root}
}

// Path returns where a repository's clone lives, whether or not it
// exists yet.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.root, strings.ToLower(name))
}

func (c *Cache) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// EnsureFresh guarantees a clone of res exists under the cache root
// and returns its path. Missing clones are created; existing clones
// are verified against the registered origin and fetched, falling
// back to the stale clone when the remote is unreachable. Concurrent
// calls for the same name share one underlying operation.
func (c *Cache) EnsureFresh(ctx context.Context, res registry.Resource) (string, error) {
	path, err, _ := c.group.Do(res.Name, func() (any, error) {
		return c.ensure(ctx, res)
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

func (c *Cache) ensure(ctx context.Context, res registry.Resource) (string, error) {
	dir := c.Path(res.Name)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if _, statErr := os.Stat(dir); statErr == nil {
			// Directory exists but holds no repository.
			return "", &CorruptError{Name: res.Name, Reason: "cache entry is not a git repository"}
		}
		return dir, c.clone(ctx, res, dir)
	}

	origin, err := gitx.Run(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		return "", &CorruptError{Name: res.Name, Reason: "origin remote missing"}
	}
	if strings.TrimSpace(origin) != strings.TrimSpace(res.Origin) {
		return "", &CorruptError{
			Name:   res.Name,
			Reason: fmt.Sprintf("origin is %q, registered as %q", origin, res.Origin),
		}
	}

	c.logf("fetching %s", res.Name)
	out, err := gitx.Run(ctx, dir, "fetch", "--prune", "origin")
	if err != nil {
		if gitx.IsNetworkFailure(out) {
			// the clone is intact; stale refs still serve worktrees
			c.logf("fetch %s failed, using stale clone: %v", res.Name, err)
			return dir, nil
		}
		return "", &CorruptError{Name: res.Name, Reason: err.Error()}
	}
	return dir, nil
}

func (c *Cache) clone(ctx context.Context, res registry.Resource, dir string) error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("create cache root: %w", err)
	}
	c.logf("cloning %s from %s", res.Name, res.Origin)
	out, err := gitx.RunIn(ctx, c.root, "clone", "--no-checkout", res.Origin, dir)
	if err != nil {
		os.RemoveAll(dir)
		if gitx.IsNetworkFailure(out) {
			return &NetworkError{Name: res.Name, Err: err}
		}
		return fmt.Errorf("clone %q: %w", res.Name, err)
	}
	return nil
}

// Rebuild discards the cache entry and clones from scratch. Used when
// a verify pass reported corruption.
func (c *Cache) Rebuild(ctx context.Context, res registry.Resource) (string, error) {
	dir := c.Path(res.Name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("remove corrupt cache entry %q: %w", res.Name, err)
	}
	return c.EnsureFresh(ctx, res)
}
