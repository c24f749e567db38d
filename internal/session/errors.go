package session

import (
	"fmt"
	"strings"
)

// PortsExhaustedError means every port in the configured window was
// taken by something other than a usable backend.
type PortsExhaustedError struct {
	Base   int
	Window int
}

func (e *PortsExhaustedError) Error() string {
	return fmt.Sprintf("no free port in %d..%d", e.Base, e.Base+e.Window-1)
}

// InvalidProviderError means the configured provider id is not known
// to the backend. Available lists what the backend offers instead.
type InvalidProviderError struct {
	Provider  string
	Available []string
}

func (e *InvalidProviderError) Error() string {
	msg := fmt.Sprintf("provider %q is not available in the backend", e.Provider)
	if len(e.Available) > 0 {
		msg += "; available: " + strings.Join(e.Available, ", ")
	}
	return msg
}

// NotConnectedError means the provider exists but has no working
// credentials. Connected lists the providers that do.
type NotConnectedError struct {
	Provider  string
	Connected []string
}

func (e *NotConnectedError) Error() string {
	msg := fmt.Sprintf("provider %q is not connected; configure its credentials in the backend", e.Provider)
	if len(e.Connected) > 0 {
		msg += " (connected: " + strings.Join(e.Connected, ", ") + ")"
	}
	return msg
}

// InvalidModelError means the configured model id is not offered by
// the configured provider.
type InvalidModelError struct {
	Provider  string
	Model     string
	Available []string
}

func (e *InvalidModelError) Error() string {
	msg := fmt.Sprintf("model %q is not available on provider %q", e.Model, e.Provider)
	if len(e.Available) > 0 {
		msg += "; available: " + strings.Join(e.Available, ", ")
	}
	return msg
}

// AgentError carries a failure the backend reported for a running
// session.
type AgentError struct {
	SessionID string
	Message   string
}

func (e *AgentError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("session %s failed", e.SessionID)
	}
	return fmt.Sprintf("session %s failed: %s", e.SessionID, e.Message)
}

// StartFailedError wraps whatever stopped a backend from serving a
// session, after the port window was dealt with.
type StartFailedError struct {
	Err error
}

func (e *StartFailedError) Error() string {
	return fmt.Sprintf("could not start agent session: %v", e.Err)
}

func (e *StartFailedError) Unwrap() error { return e.Err }
