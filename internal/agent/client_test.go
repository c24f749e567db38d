package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func clientFor(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return NewClient(port)
}

func TestCreateSessionAndPrompt(t *testing.T) {
	var promptBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "ses_123"})
	})
	mux.HandleFunc("POST /session/ses_123/message", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&promptBody)
		w.WriteHeader(http.StatusOK)
	})
	c := clientFor(t, mux)
	ctx := context.Background()

	id, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id != "ses_123" {
		t.Fatalf("id=%q", id)
	}

	if err := c.Prompt(ctx, id, "anthropic", "claude-sonnet-4-5", "how do stores work?"); err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if promptBody["providerID"] != "anthropic" || promptBody["modelID"] != "claude-sonnet-4-5" {
		t.Fatalf("body=%v", promptBody)
	}
	parts, _ := promptBody["parts"].([]any)
	if len(parts) != 1 {
		t.Fatalf("parts=%v", parts)
	}
	part, _ := parts[0].(map[string]any)
	if part["type"] != "text" || part["text"] != "how do stores work?" {
		t.Fatalf("part=%v", part)
	}
}

func TestProviders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config/providers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"providers": [
				{"id": "anthropic", "models": {"claude-sonnet-4-5": {}}},
				{"id": "openai", "models": {"gpt-4o": {}}}
			],
			"connected": ["anthropic"]
		}`))
	})
	c := clientFor(t, mux)

	list, err := c.Providers(context.Background())
	if err != nil {
		t.Fatalf("Providers: %v", err)
	}
	if len(list.Providers) != 2 || list.Providers[0].ID != "anthropic" {
		t.Fatalf("Providers=%+v", list.Providers)
	}
	if _, ok := list.Providers[0].Models["claude-sonnet-4-5"]; !ok {
		t.Fatalf("Models=%v", list.Providers[0].Models)
	}
	if !reflect.DeepEqual(list.Connected, []string{"anthropic"}) {
		t.Fatalf("Connected=%v", list.Connected)
	}
}

func TestSubscribe_ParsesEventStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /event", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"type":"server.connected","properties":{}}` + "\n\n",
			`data: {"type":"message.part.updated","properties":{"part":{"sessionID":"ses_1","type":"text","text":"hello"}}}` + "\n\n",
			`data: {"type":"session.idle","properties":{"sessionID":"ses_1"}}` + "\n\n",
		}
		for _, f := range frames {
			w.Write([]byte(f))
			flusher.Flush()
		}
	})
	c := clientFor(t, mux)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("events=%+v", got)
	}
	if got[0].Type != EventServerConnected {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].SessionID() != "ses_1" || got[1].Text() != "hello" {
		t.Fatalf("part event=%+v", got[1])
	}
	if got[2].Type != EventSessionIdle || got[2].SessionID() != "ses_1" {
		t.Fatalf("idle event=%+v", got[2])
	}
}

func TestReadEvents_MultiLineData(t *testing.T) {
	stream := "data: {\"type\":\"message.updated\",\ndata: \"properties\":{}}\n\n"
	out := make(chan Event, 4)
	readEvents(context.Background(), strings.NewReader(stream), out)
	close(out)

	var got []Event
	for ev := range out {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0].Type != EventMessageUpdated {
		t.Fatalf("events=%+v", got)
	}
}

func TestReadEvents_SkipsMalformedPayloads(t *testing.T) {
	stream := "data: not json\n\ndata: {\"type\":\"session.idle\",\"properties\":{\"sessionID\":\"s\"}}\n\n"
	out := make(chan Event, 4)
	readEvents(context.Background(), strings.NewReader(stream), out)
	close(out)

	var got []Event
	for ev := range out {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0].Type != EventSessionIdle {
		t.Fatalf("events=%+v", got)
	}
}

func TestEvent_ErrorMessage(t *testing.T) {
	ev := Event{
		Type:       EventSessionError,
		Properties: json.RawMessage(`{"sessionID":"s","error":{"name":"ProviderAuthError","data":{"message":"invalid key"}}}`),
	}
	if got := ev.ErrorMessage(); got != "invalid key" {
		t.Fatalf("ErrorMessage=%q", got)
	}
	ev.Properties = json.RawMessage(`{"error":{"name":"UnknownError"}}`)
	if got := ev.ErrorMessage(); got != "UnknownError" {
		t.Fatalf("ErrorMessage=%q", got)
	}
	if got := (Event{Type: EventSessionIdle}).ErrorMessage(); got != "" {
		t.Fatalf("ErrorMessage=%q, want empty", got)
	}
}
