// Package event defines the season audit journal: event kinds, the event
// envelope, and the canonical hashes that chain events together.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the kind of a season event.
type Kind string

// Season lifecycle events.
const (
	KindSeasonCreated   Kind = "season.created"
	KindSeasonStarted   Kind = "season.started"
	KindSeasonCompleted Kind = "season.completed"
	KindSeasonPaused    Kind = "season.paused"
	KindSeasonResumed   Kind = "season.resumed"
	KindSeasonAborted   Kind = "season.aborted"
	KindSeasonStalled   Kind = "season.stalled"
	KindSeasonUnstalled Kind = "season.unstalled"
)

// Day structure events.
const (
	KindDayStarted        Kind = "day.started"
	KindDayEnded          Kind = "day.ended"
	KindDailyStateCreated Kind = "daily_state.created"
	KindMedicalFlagged    Kind = "medical.flagged"
	KindPlayerEvacuated   Kind = "player.evacuated"
	KindCampOpened        Kind = "camp.opened"
	KindCampClosed        Kind = "camp.closed"
	KindMergeTriggered    Kind = "merge.triggered"
	KindFinaleTriggered   Kind = "finale.triggered"
)

// Challenge events.
const (
	KindChallengeOpened    Kind = "challenge.opened"
	KindChallengeCommitted Kind = "challenge.committed"
	KindChallengeLocked    Kind = "challenge.locked"
	KindChallengeRevealed  Kind = "challenge.revealed"
	KindChallengeForfeited Kind = "challenge.forfeited"
	KindChallengeScored    Kind = "challenge.scored"
)

// Vote events. Ballot contents are never journaled before the round closes.
const (
	KindVoteOpened       Kind = "vote.opened"
	KindVoteClosed       Kind = "vote.closed"
	KindVoteTallied      Kind = "vote.tallied"
	KindVoteTied         Kind = "vote.tied"
	KindIdolPlayed       Kind = "idol.played"
	KindPlayerEliminated Kind = "player.eliminated"
)

// Finale events.
const (
	KindFinaleStarted     Kind = "finale.started"
	KindSelectionOpened   Kind = "selection.opened"
	KindCompanionSelected Kind = "companion.selected"
	KindWinnerDecided     Kind = "winner.decided"
)

// Operator events.
const (
	KindPhaseSkipped       Kind = "phase.skipped"
	KindPhaseExtended      Kind = "phase.extended"
	KindSideEventTriggered Kind = "side_event.triggered"
	KindIntegrityIncident  Kind = "integrity.incident"
)

// Domain returns the prefix of the kind (e.g. "challenge").
func (k Kind) Domain() string {
	if i := strings.IndexByte(string(k), '.'); i >= 0 {
		return string(k[:i])
	}
	return string(k)
}

// IsValid reports whether the kind is usable.
func (k Kind) IsValid() bool {
	return strings.TrimSpace(string(k)) != ""
}

// ActorType identifies who caused an event.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorPlayer ActorType = "player"
	ActorGM     ActorType = "gm"
)

// Event is an immutable entry in a season's audit journal.
type Event struct {
	SeasonID string `json:"season_id"`
	// Seq starts at 1 per season. Assigned by storage on append.
	Seq uint64 `json:"seq"`
	// Day is the in-game day, 0 before the season starts.
	Day       int       `json:"day"`
	Kind      Kind      `json:"kind"`
	ActorType ActorType `json:"actor_type"`
	ActorID   string    `json:"actor_id,omitempty"`
	// EntityID names the player, challenge, or round affected.
	EntityID    string          `json:"entity_id,omitempty"`
	Timestamp   time.Time       `json:"ts"`
	PayloadJSON json.RawMessage `json:"payload,omitempty"`

	// Integrity fields, assigned by storage on append.
	Hash           string `json:"hash,omitempty"`
	PrevHash       string `json:"prev_hash,omitempty"`
	ChainHash      string `json:"chain_hash,omitempty"`
	SignatureKeyID string `json:"signature_key_id,omitempty"`
	Signature      string `json:"signature,omitempty"`
}

// New builds a system event with payload encoded as JSON.
func New(seasonID string, day int, kind Kind, entityID string, payload any) (Event, error) {
	evt := Event{
		SeasonID:  seasonID,
		Day:       day,
		Kind:      kind,
		ActorType: ActorSystem,
		EntityID:  entityID,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		evt.PayloadJSON = data
	}
	return evt, nil
}

// By attributes the event to an actor.
func (e Event) By(actor ActorType, actorID string) Event {
	e.ActorType = actor
	e.ActorID = actorID
	return e
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.PayloadJSON) == 0 {
		return nil
	}
	return json.Unmarshal(e.PayloadJSON, v)
}

// Validate checks the fields every stored event needs.
func (e Event) Validate() error {
	if strings.TrimSpace(e.SeasonID) == "" {
		return fmt.Errorf("season id is required")
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("event kind is required")
	}
	if e.Day < 0 {
		return fmt.Errorf("event day must not be negative")
	}
	if e.ActorType == "" {
		return fmt.Errorf("actor type is required")
	}
	if len(e.PayloadJSON) > 0 && !json.Valid(e.PayloadJSON) {
		return fmt.Errorf("payload is not valid json")
	}
	return nil
}
