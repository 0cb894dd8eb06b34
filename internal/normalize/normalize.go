package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	SentinelSource   = "unknown"
	SentinelCategory = "unknown_event"

	// Timestamps below this are seconds, not milliseconds.
	millisThreshold = 1e12
)

var (
	ErrMalformed  = errors.New("normalize: malformed payload")
	ErrNoIdentity = errors.New("normalize: payload carries no event, alert, or msg")
)

// Result is what a single frame normalizes to: exactly one of Incident or
// Notice is set.
type Result struct {
	Incident *Incident
	Notice   *Notice
}

// Normalizer derives a stable identity tuple from inconsistently-shaped
// payloads. Resolution is total: every identity field has a defined
// fallback, and the same timestamped payload always yields the same tuple.
// The clock is only consulted for payloads with no timestamp at all.
type Normalizer struct {
	now func() time.Time
}

func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock pins the arrival-time fallback for tests.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize classifies one frame from either channel.
func (n *Normalizer) Normalize(raw []byte) (Result, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !env.hasIdentity() {
		if text := env.noticeText(); text != "" {
			return Result{Notice: &Notice{Text: text, ReceivedAt: n.now()}}, nil
		}
		return Result{}, ErrNoIdentity
	}

	inc := n.normalizeEnvelope(&env, raw)
	return Result{Incident: &inc}, nil
}

// NormalizeSnapshot decodes a pull response and normalizes its incidents
// array. Entries that fail to decode are skipped; a missing or non-array
// `incidents` field rejects the whole response. Sibling keys (totals,
// by_type, by_zone) are tolerated and ignored.
func (n *Normalizer) NormalizeSnapshot(raw []byte) ([]Incident, error) {
	var resp struct {
		Incidents []json.RawMessage `json:"incidents"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Incidents == nil {
		return nil, fmt.Errorf("%w: missing incidents array", ErrMalformed)
	}

	out := make([]Incident, 0, len(resp.Incidents))
	for _, entry := range resp.Incidents {
		var env envelope
		if err := json.Unmarshal(entry, &env); err != nil {
			continue
		}
		if !env.hasIdentity() {
			continue
		}
		out = append(out, n.normalizeEnvelope(&env, entry))
	}
	return out, nil
}

func (n *Normalizer) normalizeEnvelope(env *envelope, raw []byte) Incident {
	sourceID := resolveSource(env)
	category := resolveCategory(env)
	occurredAt := n.resolveOccurredAt(env)

	id := resolveExplicitID(env)
	if id == "" {
		// Composite fallback. Deterministic when the payload carried a
		// timestamp; arrival-time otherwise.
		id = fmt.Sprintf("%s|%s|%d", sourceID, category, occurredAt.UnixMilli())
	}

	payload := make(json.RawMessage, len(raw))
	copy(payload, raw)

	return Incident{
		ID:         id,
		SourceID:   sourceID,
		Category:   category,
		OccurredAt: occurredAt,
		Payload:    payload,
	}
}

func resolveExplicitID(env *envelope) string {
	if env.ID != "" {
		return env.ID
	}
	if env.EventID != "" {
		return env.EventID
	}
	if env.Event != nil && env.Event.EventID != "" {
		return env.Event.EventID
	}
	return ""
}

func resolveSource(env *envelope) string {
	if env.SourceID != "" {
		return env.SourceID
	}
	if env.CameraID != "" {
		return env.CameraID
	}
	if env.Event != nil && env.Event.CameraID != "" {
		return env.Event.CameraID
	}
	return SentinelSource
}

func resolveCategory(env *envelope) string {
	if env.Category != "" {
		return env.Category
	}
	if env.EventType != "" {
		return env.EventType
	}
	if env.Event != nil && env.Event.EventType != "" {
		return env.Event.EventType
	}
	return SentinelCategory
}

func (n *Normalizer) resolveOccurredAt(env *envelope) time.Time {
	ts := env.OccurredAt
	if ts == nil {
		ts = env.Timestamp
	}
	if ts == nil && env.Event != nil {
		ts = env.Event.Timestamp
	}
	if ts == nil {
		return n.now()
	}
	return time.UnixMilli(toMillis(*ts))
}

// toMillis normalizes a wire timestamp to Unix milliseconds. The backend
// emits float seconds (time.time()); some emitters already send millis.
func toMillis(v float64) int64 {
	if v < millisThreshold {
		return int64(v * 1000)
	}
	return int64(v)
}
