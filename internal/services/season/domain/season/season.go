// Package season models a season's lifecycle: its status, the persisted
// phase cursor the orchestrator resumes from, and operator controls.
package season

import (
	"fmt"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
)

// Status is the season-level lifecycle position.
type Status string

const (
	StatusPlanned  Status = "planned"
	StatusActive   Status = "active"
	StatusFinale   Status = "finale"
	StatusComplete Status = "complete"
)

// RunState says whether the orchestrator may advance the season.
type RunState string

const (
	RunRunning RunState = "running"
	RunPaused  RunState = "paused"
	RunStalled RunState = "stalled"
	RunAborted RunState = "aborted"
)

// Season is the orchestrator-owned season row.
type Season struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Status   Status   `json:"status"`
	RunState RunState `json:"run_state"`
	// DayIndex is the current in-game day, starting at 1.
	DayIndex int  `json:"day_index"`
	Merged   bool `json:"merged"`
	// Phase is the last completed step.
	Phase Phase `json:"phase"`
	// NextPhase runs once PhaseDeadline has passed.
	NextPhase     Phase     `json:"next_phase"`
	PhaseDeadline time.Time `json:"phase_deadline"`
	// PausedRemaining holds the time left on the deadline while paused.
	PausedRemaining time.Duration `json:"paused_remaining,omitempty"`
	StalledPhase    Phase         `json:"stalled_phase,omitempty"`
	StalledError    string        `json:"stalled_error,omitempty"`
	// Companion is the finalist chosen by the final immunity winner.
	Companion   string     `json:"companion,omitempty"`
	Winner      string     `json:"winner,omitempty"`
	Config      Config     `json:"config"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a planned season.
func New(id, name string, cfg Config, now time.Time) (Season, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Season{}, err
	}
	if name == "" {
		name = id
	}
	now = now.UTC()
	return Season{
		ID:        id,
		Name:      name,
		Status:    StatusPlanned,
		RunState:  RunRunning,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Terminal reports whether no further transitions may happen.
func (s Season) Terminal() bool {
	return s.Status == StatusComplete || s.RunState == RunAborted
}

// InPlay reports whether the season has started and is not terminal.
func (s Season) InPlay() bool {
	return (s.Status == StatusActive || s.Status == StatusFinale) && !s.Terminal()
}

// Runnable reports whether the orchestrator may run the next step.
func (s Season) Runnable() bool {
	return s.InPlay() && s.RunState == RunRunning && s.NextPhase != PhaseNone
}

// Due reports whether the next step may run at now.
func (s Season) Due(now time.Time) bool {
	return s.Runnable() && !now.Before(s.PhaseDeadline)
}

// Wait returns how long until the next step is due.
func (s Season) Wait(now time.Time) time.Duration {
	if !s.Runnable() {
		return 0
	}
	if d := s.PhaseDeadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Start moves a planned season to day one.
func (s Season) Start(now time.Time) (Season, error) {
	if s.Status != StatusPlanned {
		return s, apperrors.New(apperrors.CodeSeasonNotPlanned, fmt.Sprintf("season %s is %s", s.ID, s.Status))
	}
	now = now.UTC()
	s.Status = StatusActive
	s.RunState = RunRunning
	s.DayIndex = 1
	s.NextPhase = PhaseDayStart
	s.PhaseDeadline = now
	s.StartedAt = &now
	s.UpdatedAt = now
	return s, nil
}

// Advance records a completed step and schedules the next one.
func (s Season) Advance(done, next Phase, deadline, now time.Time) Season {
	s.Phase = done
	s.NextPhase = next
	s.PhaseDeadline = deadline.UTC()
	s.UpdatedAt = now.UTC()
	if next.Finale() && s.Status == StatusActive {
		s.Status = StatusFinale
	}
	if next == PhaseComplete || done == PhaseComplete {
		s.Status = StatusComplete
		s.NextPhase = PhaseNone
		at := now.UTC()
		s.CompletedAt = &at
	}
	return s
}

// CheckLive returns a state error unless the season is in play.
func (s Season) CheckLive() error {
	if s.Terminal() {
		return apperrors.New(apperrors.CodeSeasonTerminal, fmt.Sprintf("season %s is over", s.ID))
	}
	if !s.InPlay() {
		return apperrors.New(apperrors.CodeSeasonNotActive, fmt.Sprintf("season %s is %s", s.ID, s.Status))
	}
	return nil
}

// Pause suspends the phase timer.
func (s Season) Pause(now time.Time) (Season, error) {
	if err := s.CheckLive(); err != nil {
		return s, err
	}
	if s.RunState != RunRunning {
		return s, apperrors.New(apperrors.CodeSeasonPaused, fmt.Sprintf("season %s is %s", s.ID, s.RunState))
	}
	s.PausedRemaining = s.Wait(now)
	s.RunState = RunPaused
	s.UpdatedAt = now.UTC()
	return s, nil
}

// Resume restarts the phase timer with the time that was left.
func (s Season) Resume(now time.Time) (Season, error) {
	if err := s.CheckLive(); err != nil {
		return s, err
	}
	if s.RunState != RunPaused {
		return s, apperrors.New(apperrors.CodeSeasonNotPaused, fmt.Sprintf("season %s is %s", s.ID, s.RunState))
	}
	now = now.UTC()
	s.PhaseDeadline = now.Add(s.PausedRemaining)
	s.PausedRemaining = 0
	s.RunState = RunRunning
	s.UpdatedAt = now
	return s, nil
}

// Skip ends the current wait immediately.
func (s Season) Skip(now time.Time) (Season, error) {
	if err := s.CheckLive(); err != nil {
		return s, err
	}
	now = now.UTC()
	switch s.RunState {
	case RunRunning:
		s.PhaseDeadline = now
	case RunPaused:
		s.PausedRemaining = 0
	default:
		return s, apperrors.New(apperrors.CodePhaseOutOfOrder, fmt.Sprintf("season %s is %s", s.ID, s.RunState))
	}
	s.UpdatedAt = now
	return s, nil
}

// Extend lengthens the current wait by d.
func (s Season) Extend(d time.Duration, now time.Time) (Season, error) {
	if d <= 0 {
		return s, apperrors.New(apperrors.CodeInvalidArgument, "extension must be positive")
	}
	if err := s.CheckLive(); err != nil {
		return s, err
	}
	now = now.UTC()
	switch s.RunState {
	case RunRunning:
		base := s.PhaseDeadline
		if base.Before(now) {
			base = now
		}
		s.PhaseDeadline = base.Add(d)
	case RunPaused:
		s.PausedRemaining += d
	default:
		return s, apperrors.New(apperrors.CodePhaseOutOfOrder, fmt.Sprintf("season %s is %s", s.ID, s.RunState))
	}
	s.UpdatedAt = now
	return s, nil
}

// Abort ends the season. No further transitions happen.
func (s Season) Abort(now time.Time) (Season, error) {
	if s.Terminal() {
		return s, apperrors.New(apperrors.CodeSeasonTerminal, fmt.Sprintf("season %s is over", s.ID))
	}
	s.RunState = RunAborted
	s.UpdatedAt = now.UTC()
	return s, nil
}

// Stall halts the season after a step failed for good.
func (s Season) Stall(phase Phase, reason string, now time.Time) Season {
	s.RunState = RunStalled
	s.StalledPhase = phase
	s.StalledError = reason
	s.UpdatedAt = now.UTC()
	return s
}

// ClearStall lets an operator retry the failed step.
func (s Season) ClearStall(now time.Time) (Season, error) {
	if s.RunState != RunStalled {
		return s, apperrors.New(apperrors.CodeSeasonNotStalled, fmt.Sprintf("season %s is %s", s.ID, s.RunState))
	}
	now = now.UTC()
	s.RunState = RunRunning
	s.StalledPhase = PhaseNone
	s.StalledError = ""
	s.PhaseDeadline = now
	s.UpdatedAt = now
	return s, nil
}

// ChallengeKind is team scoring before the merge and individual after.
func (s Season) ChallengeKind() challenge.Kind {
	if s.Merged {
		return challenge.KindIndividual
	}
	return challenge.KindTeam
}

// DaySummary is written once per day at day end.
type DaySummary struct {
	SeasonID      string    `json:"season_id"`
	Day           int       `json:"day"`
	EventsEmitted int       `json:"events_emitted"`
	Eliminated    string    `json:"eliminated,omitempty"`
	Evacuated     []string  `json:"evacuated,omitempty"`
	ActiveAtEnd   int       `json:"active_at_end"`
	CreatedAt     time.Time `json:"created_at"`
}
