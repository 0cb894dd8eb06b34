package normalize

import (
	"encoding/json"
	"time"
)

// Incident is the canonical unit of history. Every entry in the store and
// the registry is one of these, regardless of which channel delivered it.
type Incident struct {
	ID         string          `json:"id"`
	SourceID   string          `json:"source_id"`
	Category   string          `json:"category"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Resolved   bool            `json:"resolved"`
}

// Notice is a degraded informational message: valid JSON that carries
// neither an event nor an alert, only free text. Displayed, never stored.
type Notice struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// envelope is the tolerant decode target for both push frames and pull
// snapshot entries. The backend nests `event` and `alert`, but flat
// payloads and Incident-shaped pull entries must normalize identically,
// so the flat synonyms live here too. No field is guaranteed present.
type envelope struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
	// Some emitters spell the degraded field out.
	Message string `json:"message"`

	// Flat synonyms (simulator posts these without nesting).
	EventID    string   `json:"event_id"`
	SourceID   string   `json:"source_id"`
	CameraID   string   `json:"camera_id"`
	Category   string   `json:"category"`
	EventType  string   `json:"event_type"`
	OccurredAt *float64 `json:"occurred_at"`
	Timestamp  *float64 `json:"timestamp"`

	Event *eventBody `json:"event"`
	Alert *alertBody `json:"alert"`
}

type eventBody struct {
	EventID    string   `json:"event_id"`
	CameraID   string   `json:"camera_id"`
	Zone       string   `json:"zone"`
	EventType  string   `json:"event_type"`
	Confidence float64  `json:"confidence"`
	Timestamp  *float64 `json:"timestamp"`
}

type alertBody struct {
	Priority       string   `json:"priority"`
	Summary        string   `json:"summary"`
	SuspicionScore *float64 `json:"suspicion_score"`
}

func (e *envelope) noticeText() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Message
}

// hasIdentity reports whether the payload carries anything an incident
// identity can be derived from. Frames without it are notices or garbage.
func (e *envelope) hasIdentity() bool {
	if e.Event != nil || e.Alert != nil {
		return true
	}
	return e.ID != "" || e.EventID != "" || e.SourceID != "" || e.CameraID != "" ||
		e.Category != "" || e.EventType != "" || e.OccurredAt != nil || e.Timestamp != nil
}
