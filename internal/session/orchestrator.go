// Package session pairs workspaces with backend processes: it finds a
// port, boots the agent inside the workspace, validates the configured
// provider and model, and exposes each answer as a filtered event
// stream with guaranteed teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bctx/internal/agent"
	"bctx/internal/config"
	"bctx/internal/registry"
	"bctx/internal/workspace"
)

// backend is the running server surface the orchestrator needs.
// Satisfied by *agent.Server; tests substitute an in-process fake.
type backend interface {
	Client() *agent.Client
	Close()
}

// workspaces is the slice of the engine the orchestrator uses.
type workspaces interface {
	Ensure(ctx context.Context, members []registry.Resource) (workspace.Workspace, error)
}

// Orchestrator opens sessions against registered repository sets.
type Orchestrator struct {
	cfg      config.Config
	registry *registry.Registry
	engine   workspaces
	Logf     func(format string, args ...any)

	// start is swappable for tests.
	start func(ctx context.Context, opts agent.StartOptions) (backend, int, error)
}

func NewOrchestrator(cfg config.Config, reg *registry.Registry, engine workspaces) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: reg,
		engine:   engine,
		start:    defaultStart,
	}
}

func defaultStart(ctx context.Context, opts agent.StartOptions) (backend, int, error) {
	server, err := agent.Start(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	return server, server.Port, nil
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// Session is one running backend bound to a workspace. Close is safe
// to call any number of times and always runs the full teardown.
type Session struct {
	ID        string
	Workspace workspace.Workspace

	server    backend
	port      int
	events    <-chan agent.Event
	cancelSub context.CancelFunc
	closeOnce sync.Once
}

// Port returns the backend's listen port.
func (s *Session) Port() int {
	return s.port
}

// Close cancels the event subscription and stops the backend.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancelSub()
		s.server.Close()
	})
}

// Open resolves the named repositories, materialises their workspace,
// boots a backend in it and creates an agent session. Every name must
// be registered; the first unknown one aborts before any git work.
func (o *Orchestrator) Open(ctx context.Context, repoNames []string) (*Session, error) {
	if len(repoNames) == 0 {
		return nil, fmt.Errorf("at least one repository is required")
	}

	members := make([]registry.Resource, 0, len(repoNames))
	for _, name := range repoNames {
		res, err := o.registry.Get(name)
		if err != nil {
			return nil, err
		}
		members = append(members, res)
	}

	ws, err := o.engine.Ensure(ctx, members)
	if err != nil {
		return nil, err
	}

	server, port, err := o.bootServer(ctx, ws.Dir)
	if err != nil {
		return nil, err
	}

	sess, err := o.attach(ctx, server, port, ws)
	if err != nil {
		server.Close()
		return nil, err
	}
	return sess, nil
}

// bootServer walks the port window, skipping ports something else
// already holds.
func (o *Orchestrator) bootServer(ctx context.Context, dir string) (backend, int, error) {
	base := o.cfg.Server.BasePort
	window := o.cfg.Server.PortWindow
	timeout := time.Duration(o.cfg.Agent.BootTimeoutMS) * time.Millisecond

	for port := base; port < base+window; port++ {
		server, boundPort, err := o.start(ctx, agent.StartOptions{
			Command:     o.cfg.Agent.Command,
			Dir:         dir,
			Port:        port,
			BootTimeout: timeout,
			Logf:        o.Logf,
		})
		if err == nil {
			return server, boundPort, nil
		}
		if errors.Is(err, agent.ErrPortBusy) {
			o.logf("port %d busy, trying next", port)
			continue
		}
		return nil, 0, &StartFailedError{Err: err}
	}
	return nil, 0, &PortsExhaustedError{Base: base, Window: window}
}

func (o *Orchestrator) attach(ctx context.Context, server backend, port int, ws workspace.Workspace) (*Session, error) {
	if err := o.validateModel(ctx, server.Client()); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	events, err := server.Client().Subscribe(subCtx)
	if err != nil {
		cancel()
		return nil, &StartFailedError{Err: fmt.Errorf("subscribe to events: %w", err)}
	}

	id, err := server.Client().CreateSession(ctx)
	if err != nil {
		cancel()
		return nil, &StartFailedError{Err: fmt.Errorf("create session: %w", err)}
	}

	o.logf("session %s open on port %d for %s", id, port, ws.Key)
	return &Session{
		ID:        id,
		Workspace: ws,
		server:    server,
		port:      port,
		events:    events,
		cancelSub: cancel,
	}, nil
}

// validateModel checks the configured provider and model against the
// backend's inventory. An inventory that cannot be fetched does not
// block the session; the prompt itself will surface real failures.
func (o *Orchestrator) validateModel(ctx context.Context, client *agent.Client) error {
	list, err := client.Providers(ctx)
	if err != nil {
		o.logf("provider inventory unavailable: %v", err)
		return nil
	}

	provider := o.cfg.Agent.Provider
	model := o.cfg.Agent.Model

	var found *agent.ProviderInfo
	for i := range list.Providers {
		if list.Providers[i].ID == provider {
			found = &list.Providers[i]
			break
		}
	}
	if found == nil {
		available := make([]string, 0, len(list.Providers))
		for _, p := range list.Providers {
			available = append(available, p.ID)
		}
		sort.Strings(available)
		return &InvalidProviderError{Provider: provider, Available: available}
	}
	if len(list.Connected) > 0 {
		connected := false
		for _, id := range list.Connected {
			if id == provider {
				connected = true
				break
			}
		}
		if !connected {
			ids := append([]string(nil), list.Connected...)
			sort.Strings(ids)
			return &NotConnectedError{Provider: provider, Connected: ids}
		}
	}
	if len(found.Models) > 0 {
		if _, ok := found.Models[model]; !ok {
			available := make([]string, 0, len(found.Models))
			for id := range found.Models {
				available = append(available, id)
			}
			sort.Strings(available)
			return &InvalidModelError{Provider: provider, Model: model, Available: available}
		}
	}
	return nil
}

// Prompt sends a question into the session and returns the filtered
// event stream for the answer. The stream ends when the session goes
// idle or fails.
func (o *Orchestrator) Prompt(ctx context.Context, sess *Session, text string) *Stream {
	stream := newStream()
	promptErr := make(chan error, 1)
	go func() {
		promptErr <- sess.server.Client().Prompt(ctx, sess.ID, o.cfg.Agent.Provider, o.cfg.Agent.Model, text)
	}()
	go stream.run(ctx, sess, promptErr)
	return stream
}

// Ask is the single-shot path: open a session for the named
// repositories, send the question, collect the whole answer, tear
// everything down.
func (o *Orchestrator) Ask(ctx context.Context, repoNames []string, question string) (string, error) {
	sess, err := o.Open(ctx, repoNames)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	stream := o.Prompt(ctx, sess, question)
	answer := newAnswerBuilder()
	for ev := range stream.Events() {
		answer.observe(ev)
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return answer.String(), nil
}

// answerBuilder assembles the final answer from part events. Each
// part event carries that part's full text so far, so only the latest
// text per part id is kept, in first-seen order.
type answerBuilder struct {
	order []string
	parts map[string]string
}

func newAnswerBuilder() *answerBuilder {
	return &answerBuilder{parts: make(map[string]string)}
}

func (b *answerBuilder) observe(ev agent.Event) {
	text := ev.Text()
	if text == "" {
		return
	}
	id := ev.PartID()
	if id == "" {
		id = fmt.Sprintf("anon-%d", len(b.order))
	}
	if _, seen := b.parts[id]; !seen {
		b.order = append(b.order, id)
	}
	b.parts[id] = text
}

func (b *answerBuilder) String() string {
	out := make([]string, 0, len(b.order))
	for _, id := range b.order {
		if t := strings.TrimSpace(b.parts[id]); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n\n")
}

// ResolveNames expands raw names against the registry, reporting all
// unknown ones at once. Used by callers that want a complete error
// before opening anything.
func (o *Orchestrator) ResolveNames(names []string) ([]registry.Resource, error) {
	var unknown []string
	members := make([]registry.Resource, 0, len(names))
	for _, name := range names {
		res, err := o.registry.Get(name)
		if err != nil {
			unknown = append(unknown, strings.ToLower(strings.TrimSpace(name)))
			continue
		}
		members = append(members, res)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown repositories: %s", strings.Join(unknown, ", "))
	}
	return members, nil
}
