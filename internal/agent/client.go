// Package agent talks to a coding-agent backend process over its local
// HTTP API: session creation, prompting, provider discovery and the
// SSE event bus.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxEventSize bounds a single SSE event. Message parts carry whole
// answer texts, so the ceiling is generous.
const maxEventSize = 8 * 1024 * 1024

// Client issues requests against one backend instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets the backend listening on 127.0.0.1:port. The
// client carries no overall timeout; event streams are long-lived and
// are bounded by contexts instead.
func NewClient(port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		http:    &http.Client{},
	}
}

// Ready probes the backend's app endpoint.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/app", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("app probe: status %d", resp.StatusCode)
	}
	return nil
}

// CreateSession opens a new session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	resp, err := c.postJSON(ctx, "/session", map[string]any{})
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("parse session response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("session response has no id")
	}
	return out.ID, nil
}

// Prompt sends one text message into a session. The backend answers
// asynchronously over the event bus; this returns once the message is
// accepted.
func (c *Client) Prompt(ctx context.Context, sessionID, providerID, modelID, text string) error {
	body := map[string]any{
		"providerID": providerID,
		"modelID":    modelID,
		"parts": []map[string]any{
			{"type": "text", "text": text},
		},
	}
	_, err := c.postJSON(ctx, "/session/"+sessionID+"/message", body)
	return err
}

// ProviderInfo describes one configured provider and its model ids.
type ProviderInfo struct {
	ID     string                     `json:"id"`
	Models map[string]json.RawMessage `json:"models"`
}

// ProviderList is the backend's provider inventory. Connected lists
// the provider ids with working credentials.
type ProviderList struct {
	Providers []ProviderInfo `json:"providers"`
	Connected []string       `json:"connected"`
}

// Providers fetches the provider inventory.
func (c *Client) Providers(ctx context.Context) (ProviderList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config/providers", nil)
	if err != nil {
		return ProviderList{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ProviderList{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ProviderList{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return ProviderList{}, fmt.Errorf("providers: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var list ProviderList
	if err := json.Unmarshal(data, &list); err != nil {
		return ProviderList{}, fmt.Errorf("parse providers: %w", err)
	}
	return list, nil
}

// Subscribe attaches to the event bus. Events arrive on the returned
// channel until ctx is cancelled or the stream breaks; the channel is
// closed either way.
func (c *Client) Subscribe(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream: status %d", resp.StatusCode)
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readEvents(ctx, resp.Body, events)
	}()
	return events, nil
}

// readEvents parses the SSE framing: "data:" lines accumulate until a
// blank line terminates the event.
func readEvents(ctx context.Context, r io.Reader, out chan<- Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()
}

func (c *Client) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// waitReady polls the app probe until it answers or the deadline hits.
func (c *Client) waitReady(ctx context.Context, deadline time.Time) error {
	for {
		probe, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Ready(probe)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("backend not ready: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
	}
}
