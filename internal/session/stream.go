package session

import (
	"context"
	"sync"

	"bctx/internal/agent"
)

// Stream is one answer's event flow: events belonging to the session
// pass through, as do informational events that carry no session id.
// The channel closes when the session goes idle, the backend reports a
// session error, the prompt fails to send, or the context ends; Err
// reports why after the close. Cancellation by the consumer is not an
// error: the stream just ends.
type Stream struct {
	events chan agent.Event

	mu  sync.Mutex
	err error
}

func newStream() *Stream {
	return &Stream{events: make(chan agent.Event, 64)}
}

// Events is the filtered event channel.
func (s *Stream) Events() <-chan agent.Event {
	return s.events
}

// Err returns the terminal failure, if any. Valid once Events is
// closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Stream) run(ctx context.Context, sess *Session, promptErr <-chan error) {
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-promptErr:
			if err != nil {
				s.fail(&StartFailedError{Err: err})
				return
			}
			// prompt accepted; answers keep flowing on the bus
			promptErr = nil
		case ev, ok := <-sess.events:
			if !ok {
				// subscription broke underneath us
				s.fail(&AgentError{SessionID: sess.ID, Message: "event stream closed"})
				return
			}
			// events without a session id (server.connected and the
			// like) pass through; only genuine mismatches are dropped
			if id := ev.SessionID(); id != "" && id != sess.ID {
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
			switch ev.Type {
			case agent.EventSessionIdle:
				return
			case agent.EventSessionError:
				s.fail(&AgentError{SessionID: sess.ID, Message: ev.ErrorMessage()})
				return
			}
		}
	}
}
