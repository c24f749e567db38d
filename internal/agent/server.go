package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrPortBusy marks a boot failure caused by the requested port being
// taken. The caller retries on the next port in its window.
var ErrPortBusy = errors.New("port already in use")

// BootError is a backend that started but never became ready, or
// exited during boot for a reason other than a port clash.
type BootError struct {
	Port   int
	Output string
	Err    error
}

func (e *BootError) Error() string {
	msg := fmt.Sprintf("backend failed to boot on port %d: %v", e.Port, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *BootError) Unwrap() error { return e.Err }

// StartOptions configures one backend launch.
type StartOptions struct {
	Command     string
	Dir         string
	Port        int
	BootTimeout time.Duration
	Logf        func(format string, args ...any)
}

// Server is one running backend process bound to a port.
type Server struct {
	Port   int
	Dir    string
	client *Client

	cmd       *exec.Cmd
	output    *prefixBuffer
	done      chan struct{}
	exitErr   error
	closeOnce sync.Once
}

// Client returns the HTTP client bound to this server's port.
func (s *Server) Client() *Client {
	return s.client
}

// Start launches the backend in dir, serving on the given port, and
// waits for it to come up. Returns ErrPortBusy (wrapped) when the port
// was taken, so the caller can probe the next one.
func Start(ctx context.Context, opts StartOptions) (*Server, error) {
	if opts.Command == "" {
		return nil, errors.New("agent command is empty")
	}
	if opts.BootTimeout <= 0 {
		opts.BootTimeout = 20 * time.Second
	}

	cmd := exec.Command(opts.Command, "serve",
		"--hostname", "127.0.0.1",
		"--port", strconv.Itoa(opts.Port))
	cmd.Dir = opts.Dir
	out := &prefixBuffer{limit: 64 * 1024}
	cmd.Stdout = out
	cmd.Stderr = out
	// Own process group, so Close can take down the backend and
	// whatever it spawned in one signal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if opts.Logf != nil {
		opts.Logf("starting %s serve on port %d in %s", opts.Command, opts.Port, opts.Dir)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", opts.Command, err)
	}

	s := &Server{
		Port:   opts.Port,
		Dir:    opts.Dir,
		client: NewClient(opts.Port),
		cmd:    cmd,
		output: out,
		done:   make(chan struct{}),
	}
	go func() {
		s.exitErr = cmd.Wait()
		close(s.done)
	}()

	deadline := time.Now().Add(opts.BootTimeout)
	readyErr := make(chan error, 1)
	go func() {
		readyErr <- s.client.waitReady(ctx, deadline)
	}()

	select {
	case <-s.done:
		// Exited during boot. Port clashes surface in the output.
		output := s.output.String()
		if mentionsPortConflict(output) {
			return nil, fmt.Errorf("port %d: %w", opts.Port, ErrPortBusy)
		}
		return nil, &BootError{Port: opts.Port, Output: output, Err: s.exitErr}
	case err := <-readyErr:
		if err != nil {
			s.Close()
			return nil, &BootError{Port: opts.Port, Output: s.output.String(), Err: err}
		}
		return s, nil
	}
}

// Close stops the backend: SIGTERM to the process group, then SIGKILL
// after a grace period. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		pgid := -s.cmd.Process.Pid
		syscall.Kill(pgid, syscall.SIGTERM)
		select {
		case <-s.done:
		case <-time.After(3 * time.Second):
			syscall.Kill(pgid, syscall.SIGKILL)
			<-s.done
		}
	})
}

// Done is closed when the backend process exits.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// mentionsPortConflict classifies boot output. Backends word the bind
// failure differently across versions, so any mention of the port
// counts as a clash and the caller moves on to the next one.
func mentionsPortConflict(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "port") || strings.Contains(lower, "eaddrinuse")
}

// prefixBuffer keeps the first limit bytes of process output for error
// reports and discards the rest.
type prefixBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *prefixBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining := b.limit - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *prefixBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
