package agent

import "encoding/json"

// Event types emitted by the backend's event bus.
const (
	EventServerConnected    = "server.connected"
	EventSessionIdle        = "session.idle"
	EventSessionError       = "session.error"
	EventMessagePartUpdated = "message.part.updated"
	EventMessageUpdated     = "message.updated"
)

// Event is one bus entry. Properties stay raw; each event type has its
// own shape and most consumers only need the session id and text parts.
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

type eventProps struct {
	SessionID string `json:"sessionID"`
	Info      struct {
		ID        string `json:"id"`
		SessionID string `json:"sessionID"`
	} `json:"info"`
	Part struct {
		ID        string `json:"id"`
		SessionID string `json:"sessionID"`
		Type      string `json:"type"`
		Text      string `json:"text"`
	} `json:"part"`
	Error struct {
		Name string `json:"name"`
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

func (e Event) props() eventProps {
	var p eventProps
	json.Unmarshal(e.Properties, &p)
	return p
}

// SessionID extracts the owning session id from whichever property
// slot this event type uses, or "" for global events.
func (e Event) SessionID() string {
	p := e.props()
	switch {
	case p.SessionID != "":
		return p.SessionID
	case p.Part.SessionID != "":
		return p.Part.SessionID
	case p.Info.SessionID != "":
		return p.Info.SessionID
	case e.Type == EventSessionIdle || e.Type == EventSessionError:
		return p.Info.ID
	}
	return ""
}

// Text returns the text payload of a message part event, or "".
func (e Event) Text() string {
	if e.Type != EventMessagePartUpdated {
		return ""
	}
	p := e.props()
	if p.Part.Type != "text" {
		return ""
	}
	return p.Part.Text
}

// PartID returns the message part id of a part event, or "". Part
// events carry the part's full text so far, so consumers keep the
// latest text per id.
func (e Event) PartID() string {
	if e.Type != EventMessagePartUpdated {
		return ""
	}
	return e.props().Part.ID
}

// ErrorMessage returns the failure description of a session.error
// event, or "".
func (e Event) ErrorMessage() string {
	if e.Type != EventSessionError {
		return ""
	}
	p := e.props()
	if p.Error.Data.Message != "" {
		return p.Error.Data.Message
	}
	return p.Error.Name
}
