// Package notify delivers season notices to the UI and chat layer.
//
// Delivery is fire-and-forget: the orchestrator never waits on a listener and
// never fails a step because a notice was lost. Notices are kept in a
// per-season Feed so a reconnecting client can replay what it missed.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/louisbranch/outlast/internal/services/season/domain/event"
)

// KindPhase marks a notice for a completed orchestrator step.
const KindPhase = "phase"

// Notice is one outbound notification.
type Notice struct {
	SeasonID string `json:"season_id"`
	// Seq is the feed position, assigned when the notice is stored.
	Seq      uint64          `json:"seq,omitempty"`
	Day      int             `json:"day"`
	Kind     string          `json:"kind"`
	Phase    string          `json:"phase,omitempty"`
	EntityID string          `json:"entity_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	At       time.Time       `json:"at"`
}

// FromEvent builds the notice announcing a committed audit event.
func FromEvent(evt event.Event) Notice {
	return Notice{
		SeasonID: evt.SeasonID,
		Day:      evt.Day,
		Kind:     string(evt.Kind),
		EntityID: evt.EntityID,
		Payload:  evt.PayloadJSON,
		At:       evt.Timestamp,
	}
}

// Notifier receives notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

// Notify calls fn.
func (fn NotifierFunc) Notify(ctx context.Context, n Notice) {
	if fn != nil {
		fn(ctx, n)
	}
}

// Nop drops every notice.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Notice) {}

// Multi forwards each notice to every notifier in order.
type Multi []Notifier

// Notify forwards n.
func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
