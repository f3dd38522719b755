package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
)

// Message types carried in Envelope.Type.
const (
	TypeExpenseRecorded = "expense.recorded"
	TypeGoalCompleted   = "goal.completed"
	TypeEntryChanged    = "entry.changed"
)

// Envelope wraps every message published on the queue. Payload is decoded
// according to Type by the consumer.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ExpenseRecorded is published after an expense is committed.
type ExpenseRecorded struct {
	UserID      string `json:"user_id"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
}

// GoalCompleted is published when a goal reaches its target.
type GoalCompleted struct {
	UserID   string `json:"user_id"`
	GoalID   string `json:"goal_id"`
	GoalName string `json:"goal_name"`
}

// EntryChanged carries a full snapshot of an entry after it was created,
// updated or voided.
type EntryChanged struct {
	Op          string    `json:"op"`
	EntryID     string    `json:"entry_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
	Voided      bool      `json:"voided"`
}

var errMissingType = errors.New("message type is required")

// NewEnvelope marshals payload under the given type.
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	if msgType == "" {
		return nil, errMissingType
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnvelopeFromJSON parses a delivery body. Bodies without a type are rejected.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, errMissingType
	}
	return &env, nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// NewEntryChanged snapshots an entry for publication.
func NewEntryChanged(e core.Entry, op core.EntryOp) EntryChanged {
	return EntryChanged{
		Op:          string(op),
		EntryID:     e.ID,
		UserID:      e.Owner,
		Kind:        string(e.Kind),
		Category:    e.Category,
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		CreatedAt:   e.CreatedAt,
		Voided:      e.Voided,
	}
}

// Entry rebuilds the entry the message was made from.
func (m EntryChanged) Entry() core.Entry {
	return core.Entry{
		ID:          m.EntryID,
		Owner:       m.UserID,
		Kind:        core.Kind(m.Kind),
		Category:    m.Category,
		Amount:      core.Cents(m.AmountCents),
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		Voided:      m.Voided,
	}
}
