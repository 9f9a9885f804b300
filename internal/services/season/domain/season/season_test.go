package season

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func started(t *testing.T) Season {
	t.Helper()
	s, err := New("s1", "", Config{}, testNow)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s, err = s.Start(testNow)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New("s1", "", Config{FastForward: true}, testNow)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Name != "s1" || s.Status != StatusPlanned {
		t.Fatalf("season = %+v", s)
	}
	if s.Config.MergeThreshold != 10 || s.Config.FinaleThreshold != 4 || s.Config.MedicalThreshold != 50 {
		t.Fatalf("thresholds = %+v", s.Config)
	}
	if !s.Config.FastForward {
		t.Fatal("explicit fields must survive defaults")
	}
	if s.Runnable() {
		t.Fatal("planned seasons do not run")
	}
}

func TestWithDefaultsFrom(t *testing.T) {
	daemon := Config{CampHours: 4, MergeThreshold: 8, FastForward: true}
	got := Config{MergeThreshold: 12}.WithDefaultsFrom(daemon)

	if got.MergeThreshold != 12 {
		t.Fatalf("explicit merge threshold overwritten: %d", got.MergeThreshold)
	}
	if got.CampHours != 4 || !got.FastForward {
		t.Fatalf("daemon defaults not applied: %+v", got)
	}
	if got.FinaleThreshold != 4 || got.TotalDays != 39 || got.Decay != DefaultConfig().Decay {
		t.Fatalf("built-in defaults not applied: %+v", got)
	}
	if (Config{}).WithDefaultsFrom(DefaultConfig()) != DefaultConfig() {
		t.Fatal("empty config must resolve to the built-in defaults")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New("s1", "", Config{MergeThreshold: 3, FinaleThreshold: 4}, testNow)
	if !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}

func TestStart(t *testing.T) {
	s := started(t)
	if s.Status != StatusActive || s.DayIndex != 1 || s.NextPhase != PhaseDayStart {
		t.Fatalf("season = %+v", s)
	}
	if !s.Due(testNow) {
		t.Fatal("day start runs immediately")
	}
	if _, err := s.Start(testNow); !apperrors.HasCode(err, apperrors.CodeSeasonNotPlanned) {
		t.Fatalf("restart err = %v", err)
	}
}

func TestDurationFastForward(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Duration(WindowCamp); got != 8*time.Hour {
		t.Fatalf("camp = %s", got)
	}
	cfg.FastForward = true
	if got := cfg.Duration(WindowCamp); got != 8*time.Minute {
		t.Fatalf("fast camp = %s", got)
	}
	cfg.RevealHours = 0.5
	if got := cfg.Duration(WindowReveal); got != 30*time.Second {
		t.Fatalf("fast reveal = %s", got)
	}
	if got := cfg.Duration(WindowNone); got != 0 {
		t.Fatalf("none = %s", got)
	}
}

func TestAdvanceMovesStatus(t *testing.T) {
	s := started(t)
	s = s.Advance(PhaseDayEnd, PhaseFinaleStart, testNow, testNow)
	if s.Status != StatusFinale {
		t.Fatalf("status = %s", s.Status)
	}
	s = s.Advance(PhaseJuryVoteTallied, PhaseComplete, testNow, testNow)
	if s.Status != StatusComplete || s.NextPhase != PhaseNone || s.CompletedAt == nil {
		t.Fatalf("season = %+v", s)
	}
	if !s.Terminal() || s.Runnable() {
		t.Fatal("complete seasons are terminal")
	}
}

func TestPauseResumeKeepsRemainingTime(t *testing.T) {
	s := started(t)
	s = s.Advance(PhaseCampOpen, PhaseCampClose, testNow.Add(8*time.Hour), testNow)

	paused, err := s.Pause(testNow.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.PausedRemaining != 6*time.Hour || paused.Runnable() {
		t.Fatalf("paused = %+v", paused)
	}
	if _, err := paused.Pause(testNow); !apperrors.HasCode(err, apperrors.CodeSeasonPaused) {
		t.Fatalf("double pause err = %v", err)
	}

	later := testNow.Add(24 * time.Hour)
	resumed, err := paused.Resume(later)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed.PhaseDeadline.Equal(later.Add(6 * time.Hour)) {
		t.Fatalf("deadline = %s", resumed.PhaseDeadline)
	}
	if _, err := resumed.Resume(later); !apperrors.HasCode(err, apperrors.CodeSeasonNotPaused) {
		t.Fatalf("resume running err = %v", err)
	}
}

func TestSkipAndExtend(t *testing.T) {
	s := started(t)
	s = s.Advance(PhaseVoteOpen, PhaseVoteClose, testNow.Add(2*time.Hour), testNow)

	skipped, err := s.Skip(testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !skipped.Due(testNow.Add(time.Minute)) {
		t.Fatal("skip makes the next step due")
	}

	extended, err := s.Extend(30*time.Minute, testNow)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !extended.PhaseDeadline.Equal(testNow.Add(150 * time.Minute)) {
		t.Fatalf("deadline = %s", extended.PhaseDeadline)
	}
	if _, err := s.Extend(0, testNow); !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("zero extend err = %v", err)
	}

	paused, _ := s.Pause(testNow)
	paused, err = paused.Extend(time.Hour, testNow)
	if err != nil {
		t.Fatalf("extend paused: %v", err)
	}
	if paused.PausedRemaining != 3*time.Hour {
		t.Fatalf("remaining = %s", paused.PausedRemaining)
	}
}

func TestAbortIsTerminal(t *testing.T) {
	s := started(t)
	aborted, err := s.Abort(testNow)
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if !aborted.Terminal() {
		t.Fatal("aborted seasons are terminal")
	}
	if _, err := aborted.Abort(testNow); !apperrors.HasCode(err, apperrors.CodeSeasonTerminal) {
		t.Fatalf("double abort err = %v", err)
	}
	if _, err := aborted.Pause(testNow); !apperrors.HasCode(err, apperrors.CodeSeasonTerminal) {
		t.Fatalf("pause aborted err = %v", err)
	}
}

func TestStallAndClear(t *testing.T) {
	s := started(t)
	if _, err := s.ClearStall(testNow); !apperrors.HasCode(err, apperrors.CodeSeasonNotStalled) {
		t.Fatalf("clear running err = %v", err)
	}
	stalled := s.Stall(PhaseDayStart, "storage unavailable", testNow)
	if stalled.Runnable() || stalled.StalledPhase != PhaseDayStart {
		t.Fatalf("stalled = %+v", stalled)
	}
	cleared, err := stalled.ClearStall(testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !cleared.Due(testNow.Add(time.Hour)) || cleared.StalledError != "" {
		t.Fatalf("cleared = %+v", cleared)
	}
	if cleared.NextPhase != PhaseDayStart {
		t.Fatal("clearing a stall retries the same step")
	}
}

func TestChallengeKindFollowsMerge(t *testing.T) {
	s := started(t)
	if s.ChallengeKind() != challenge.KindTeam {
		t.Fatal("pre-merge challenges are team challenges")
	}
	s.Merged = true
	if s.ChallengeKind() != challenge.KindIndividual {
		t.Fatal("post-merge challenges are individual")
	}
}
