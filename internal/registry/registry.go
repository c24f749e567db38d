package registry

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"bctx/internal/config"
)

// Resource is one named repository the agent can be pointed at.
type Resource struct {
	Name    string
	Origin  string
	Branch  string
	Notes   string
	Subpath string
}

// RelativePath is the member path inside a workspace: the resource name,
// extended by the search subpath when one is configured.
func (r Resource) RelativePath() string {
	if strings.TrimSpace(r.Subpath) == "" {
		return r.Name
	}
	return r.Name + "/" + strings.Trim(r.Subpath, "/")
}

var namePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// NotFoundError reports a lookup miss.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown resource %q", e.Name)
}

// DuplicateError reports an add conflict.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("resource %q already exists", e.Name)
}

// InvalidNameError reports a name outside [a-z0-9_-].
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid resource name %q (allowed: a-z, 0-9, _, -)", e.Name)
}

// Registry holds the resource list in memory and writes every mutation
// back to the config document. Loaded once at construction.
type Registry struct {
	mu        sync.Mutex
	path      string
	resources []Resource
}

// New builds a registry from an already-loaded config. Mutations persist
// to cfg.ConfigFilePath().
func New(cfg config.Config) *Registry {
	resources := make([]Resource, 0, len(cfg.Resources))
	for _, rc := range cfg.Resources {
		resources = append(resources, fromConfig(rc))
	}
	return &Registry{
		path:      cfg.ConfigFilePath(),
		resources: resources,
	}
}

// List returns all resources in insertion order.
func (r *Registry) List() []Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Resource(nil), r.resources...)
}

// Get looks up a resource by name (case-insensitive).
func (r *Registry) Get(name string) (Resource, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.resources {
		if res.Name == key {
			return res, nil
		}
	}
	return Resource{}, &NotFoundError{Name: key}
}

// Add registers a new resource and persists the list. The name is
// lowercased before validation; duplicates are rejected case-insensitively.
func (r *Registry) Add(res Resource) (Resource, error) {
	res.Name = strings.ToLower(strings.TrimSpace(res.Name))
	if !namePattern.MatchString(res.Name) {
		return Resource{}, &InvalidNameError{Name: res.Name}
	}
	if strings.TrimSpace(res.Origin) == "" {
		return Resource{}, fmt.Errorf("resource %q: origin url is empty", res.Name)
	}
	if strings.TrimSpace(res.Branch) == "" {
		res.Branch = "main"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.resources {
		if existing.Name == res.Name {
			return Resource{}, &DuplicateError{Name: res.Name}
		}
	}
	next := append(append([]Resource(nil), r.resources...), res)
	if err := r.persist(next); err != nil {
		return Resource{}, err
	}
	r.resources = next
	return res, nil
}

// Remove deletes a resource from the registry and persists the list.
// The cached clone is left untouched.
func (r *Registry) Remove(name string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.resources {
		if existing.Name != key {
			continue
		}
		next := append(append([]Resource(nil), r.resources[:i]...), r.resources[i+1:]...)
		if err := r.persist(next); err != nil {
			return err
		}
		r.resources = next
		return nil
	}
	return &NotFoundError{Name: key}
}

func (r *Registry) persist(resources []Resource) error {
	out := make([]config.ResourceConfig, 0, len(resources))
	for _, res := range resources {
		out = append(out, toConfig(res))
	}
	if err := config.SaveResources(r.path, out); err != nil {
		return fmt.Errorf("persist resources: %w", err)
	}
	return nil
}

func fromConfig(rc config.ResourceConfig) Resource {
	return Resource{
		Name:    strings.ToLower(strings.TrimSpace(rc.Name)),
		Origin:  rc.URL,
		Branch:  rc.Branch,
		Notes:   rc.SpecialNotes,
		Subpath: rc.SearchPath,
	}
}

func toConfig(res Resource) config.ResourceConfig {
	return config.ResourceConfig{
		Name:         res.Name,
		URL:          res.Origin,
		Branch:       res.Branch,
		SpecialNotes: res.Notes,
		SearchPath:   res.Subpath,
	}
}
