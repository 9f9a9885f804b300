package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/fairness"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/orchestrator"
	"github.com/louisbranch/outlast/internal/services/season/storage"
	"github.com/louisbranch/outlast/internal/services/season/storage/integrity"
	"github.com/louisbranch/outlast/internal/services/season/storage/sqlite"
)

var testStart = time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)

type recordingWaker struct {
	mu     sync.Mutex
	ensure []string
	wake   []string
}

func (w *recordingWaker) Ensure(seasonID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensure = append(w.ensure, seasonID)
}

func (w *recordingWaker) Wake(seasonID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wake = append(w.wake, seasonID)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *sqlite.Store
	orch  *orchestrator.Orchestrator
	svc   *Service
	waker *recordingWaker

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{t: t, ctx: context.Background(), now: testStart, waker: &recordingWaker{}}
	keyring, err := integrity.NewKeyring(map[string][]byte{"v1": []byte("service-root-key-0123456789abcdef")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "season.sqlite"), keyring, sqlite.WithClock(f.clock))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	f.store = store
	f.orch = orchestrator.New(store, orchestrator.WithClock(f.clock))
	f.svc = New(f.orch, WithWaker(f.waker), WithIDGenerator(func() (string, error) {
		return "generated", nil
	}))
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advanceTo(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if at.After(f.now) {
		f.now = at
	}
}

func testPlayers() []roster.Player {
	var players []roster.Player
	for _, tribe := range []string{"red", "blue"} {
		for i := 1; i <= 3; i++ {
			players = append(players, roster.Player{
				ID:        fmt.Sprintf("%s%d", tribe[:1], i),
				Tribe:     tribe,
				Archetype: roster.ArchetypeAthlete,
			})
		}
	}
	return players
}

func (f *fixture) startSeason() season.Season {
	f.t.Helper()

	cfg := season.DefaultConfig()
	cfg.MergeThreshold = 4
	cfg.FinaleThreshold = 2
	cfg.HeadToHeadThreshold = 2
	if _, err := f.svc.CreateSeason(f.ctx, CreateSeasonInput{ID: "s1", Name: "Service Season", Config: cfg, Players: testPlayers(), ActorID: "gm"}); err != nil {
		f.t.Fatalf("create season: %v", err)
	}
	sn, err := f.svc.StartSeason(f.ctx, "s1", "gm")
	if err != nil {
		f.t.Fatalf("start season: %v", err)
	}
	return sn
}

func (f *fixture) stepUntil(target season.Phase) season.Season {
	f.t.Helper()

	for i := 0; i < 64; i++ {
		sn, err := f.store.GetSeason(f.ctx, "s1")
		if err != nil {
			f.t.Fatalf("get season: %v", err)
		}
		if sn.NextPhase == target {
			return sn
		}
		if !sn.Runnable() {
			f.t.Fatalf("season stopped at %s before %s", sn.NextPhase, target)
		}
		f.advanceTo(sn.PhaseDeadline)
		if _, err := f.orch.Step(f.ctx, "s1"); err != nil {
			f.t.Fatalf("step %s: %v", sn.NextPhase, err)
		}
	}
	f.t.Fatalf("season never reached %s", target)
	return season.Season{}
}

func (f *fixture) eventKinds(kind event.Kind) []event.Event {
	f.t.Helper()

	events, err := f.svc.ListEvents(f.ctx, storage.EventQuery{SeasonID: "s1", Filter: fmt.Sprintf("kind = %q", kind)})
	if err != nil {
		f.t.Fatalf("list events: %v", err)
	}
	return events
}

func requireCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperrors.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func TestCreateAndStartSeason(t *testing.T) {
	f := newFixture(t)
	sn := f.startSeason()

	if sn.Status != season.StatusActive || sn.DayIndex != 1 || sn.NextPhase != season.PhaseDayStart {
		t.Fatalf("unexpected started season: %+v", sn)
	}
	if len(f.waker.ensure) != 1 || f.waker.ensure[0] != "s1" {
		t.Fatalf("expected runner ensured for s1, got %v", f.waker.ensure)
	}
	players, err := f.svc.ListPlayers(f.ctx, "s1")
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 6 {
		t.Fatalf("expected 6 players, got %d", len(players))
	}
	for _, p := range players {
		if p.SeasonID != "s1" || p.Status != roster.StatusActive || p.Role != roster.RoleContestant {
			t.Fatalf("unexpected player: %+v", p)
		}
	}
	created := f.eventKinds(event.KindSeasonCreated)
	if len(created) != 1 || created[0].ActorType != event.ActorGM || created[0].ActorID != "gm" {
		t.Fatalf("unexpected season.created events: %+v", created)
	}
	if len(f.eventKinds(event.KindSeasonStarted)) != 1 {
		t.Fatal("expected one season.started event")
	}

	_, err = f.svc.StartSeason(f.ctx, "s1", "gm")
	requireCode(t, err, apperrors.CodeSeasonNotPlanned)
}

func TestCreateSeasonGeneratesIDAndValidatesRoster(t *testing.T) {
	f := newFixture(t)

	sn, err := f.svc.CreateSeason(f.ctx, CreateSeasonInput{Players: testPlayers()})
	if err != nil {
		t.Fatalf("create season: %v", err)
	}
	if sn.ID != "generated" || sn.Name != "generated" || sn.Status != season.StatusPlanned {
		t.Fatalf("unexpected season: %+v", sn)
	}

	oneTribe := testPlayers()
	for i := range oneTribe {
		oneTribe[i].Tribe = "red"
	}
	_, err = f.svc.CreateSeason(f.ctx, CreateSeasonInput{ID: "s2", Players: oneTribe})
	requireCode(t, err, apperrors.CodeRosterInvalid)

	_, err = f.svc.GetSeason(f.ctx, " ")
	requireCode(t, err, apperrors.CodeInvalidArgument)
}

func TestCommitAndRevealSeed(t *testing.T) {
	f := newFixture(t)
	f.startSeason()

	_, err := f.svc.CommitSeed(f.ctx, CommitInput{SeasonID: "s1", PlayerID: "r1", Hash: fairness.HashSeed("x")})
	requireCode(t, err, apperrors.CodeChallengeNotOpen)

	f.stepUntil(season.PhaseChallengeLocked)
	seed := "seed-of-r1"
	hash := fairness.HashSeed(seed)

	inst, err := f.svc.CommitSeed(f.ctx, CommitInput{SeasonID: "s1", PlayerID: "r1", Hash: hash})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	entrant, _, _ := inst.Entrant("r1")
	if entrant.ClientSeedHash != hash || entrant.Source != challenge.SourcePlayer || entrant.CommitOrder != 1 {
		t.Fatalf("unexpected entrant: %+v", entrant)
	}
	if _, err := f.svc.CommitSeed(f.ctx, CommitInput{SeasonID: "s1", PlayerID: "r1", Hash: hash}); err != nil {
		t.Fatalf("repeat commit: %v", err)
	}
	if got := len(f.eventKinds(event.KindChallengeCommitted)); got != 1 {
		t.Fatalf("expected one committed event, got %d", got)
	}
	_, err = f.svc.CommitSeed(f.ctx, CommitInput{SeasonID: "s1", PlayerID: "r1", Hash: fairness.HashSeed("other")})
	requireCode(t, err, apperrors.CodeChallengeCommitted)
	_, err = f.svc.CommitSeed(f.ctx, CommitInput{SeasonID: "s1", PlayerID: "r2", Hash: "not-a-hash"})
	requireCode(t, err, apperrors.CodeMalformedCommit)
	_, err = f.svc.CommitSeed(f.ctx, CommitInput{SeasonID: "s1", PlayerID: "zz", Hash: hash})
	requireCode(t, err, apperrors.CodeNotEntrant)

	_, err = f.svc.RevealSeed(f.ctx, RevealInput{SeasonID: "s1", PlayerID: "r1", Seed: seed})
	requireCode(t, err, apperrors.CodeChallengeNotLocked)

	f.stepUntil(season.PhaseChallengeScored)

	_, err = f.svc.RevealSeed(f.ctx, RevealInput{SeasonID: "s1", PlayerID: "r1", Seed: "wrong"})
	requireCode(t, err, apperrors.CodeCommitMismatch)
	incidents := f.eventKinds(event.KindIntegrityIncident)
	if len(incidents) != 1 || incidents[0].EntityID != "s1/1/immunity" {
		t.Fatalf("expected one integrity incident, got %+v", incidents)
	}
	stored, err := f.store.GetChallenge(f.ctx, challenge.Key{SeasonID: "s1", Day: 1, Round: challenge.RoundImmunity})
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if e, _, _ := stored.Entrant("r1"); e.Revealed() {
		t.Fatal("mismatched seed must not be stored")
	}

	inst, err = f.svc.RevealSeed(f.ctx, RevealInput{SeasonID: "s1", PlayerID: "r1", Seed: seed})
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if inst.ServerSeed != "" {
		t.Fatal("server seed must stay hidden until scoring")
	}
	if got := len(f.eventKinds(event.KindChallengeRevealed)); got != 1 {
		t.Fatalf("expected one revealed event, got %d", got)
	}

	view, err := f.svc.ChallengeView(f.ctx, challenge.Key{SeasonID: "s1", Day: 1, Round: challenge.RoundImmunity})
	if err != nil {
		t.Fatalf("challenge view: %v", err)
	}
	if view.SeedCommit == "" || view.ServerSeed != "" {
		t.Fatalf("unexpected locked view: commit=%q server=%q", view.SeedCommit, view.ServerSeed)
	}
	for _, e := range view.Entrants {
		if e.ClientSeed != "" {
			t.Fatalf("client seed of %s visible before scoring", e.PlayerID)
		}
	}

	f.stepUntil(season.PhaseVoteOpen)
	view, err = f.svc.ChallengeView(f.ctx, challenge.Key{SeasonID: "s1", Day: 1, Round: challenge.RoundImmunity})
	if err != nil {
		t.Fatalf("challenge view: %v", err)
	}
	if !fairness.VerifyCommit(view.ServerSeed, view.SeedCommit) {
		t.Fatal("published server seed must match its commitment")
	}
}

func TestCastVoteEnforcesRound(t *testing.T) {
	f := newFixture(t)
	f.startSeason()

	_, err := f.svc.CastVote(f.ctx, VoteInput{SeasonID: "s1", VoterID: "r1", TargetID: "b1"})
	requireCode(t, err, apperrors.CodeVoteClosed)

	f.stepUntil(season.PhaseVoteClose)

	tests := []struct {
		name string
		in   VoteInput
		code apperrors.Code
	}{
		{name: "unknown voter", in: VoteInput{SeasonID: "s1", VoterID: "zz", TargetID: "b1"}, code: apperrors.CodeVoterIneligible},
		{name: "unknown target", in: VoteInput{SeasonID: "s1", VoterID: "r1", TargetID: "zz"}, code: apperrors.CodeTargetIneligible},
		{name: "self vote", in: VoteInput{SeasonID: "s1", VoterID: "r1", TargetID: "r1"}, code: apperrors.CodeTargetIneligible},
		{name: "missing target", in: VoteInput{SeasonID: "s1", VoterID: "r1"}, code: apperrors.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CastVote(f.ctx, tt.in)
			requireCode(t, err, tt.code)
		})
	}

	if _, err := f.svc.CastVote(f.ctx, VoteInput{SeasonID: "s1", VoterID: "r1", TargetID: "b1"}); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if _, err := f.svc.CastVote(f.ctx, VoteInput{SeasonID: "s1", VoterID: "r1", TargetID: "b2"}); err != nil {
		t.Fatalf("change vote: %v", err)
	}
	votes, err := f.store.ListVotes(f.ctx, "s1", 1, vote.RoundMain)
	if err != nil {
		t.Fatalf("list votes: %v", err)
	}
	latest := vote.Latest(votes)
	if len(latest) != 1 || latest[0].TargetID != "b2" {
		t.Fatalf("expected the changed ballot to count, got %+v", latest)
	}

	audit, err := f.svc.VoteRound(f.ctx, "s1", 1, vote.RoundMain)
	if err != nil {
		t.Fatalf("vote round: %v", err)
	}
	if audit.Round.Status != storage.VoteRoundOpen || len(audit.Votes) != 0 {
		t.Fatalf("ballots must stay secret while open: %+v", audit)
	}

	if _, err := f.svc.PlayIdol(f.ctx, IdolInput{SeasonID: "s1", HolderID: "b2"}); err != nil {
		t.Fatalf("play idol: %v", err)
	}
	_, err = f.svc.PlayIdol(f.ctx, IdolInput{SeasonID: "s1", HolderID: "b2"})
	requireCode(t, err, apperrors.CodeIdolAlreadyPlayed)
	if got := len(f.eventKinds(event.KindIdolPlayed)); got != 1 {
		t.Fatalf("expected one idol event, got %d", got)
	}

	f.stepUntil(season.PhaseVoteTallied)
	_, err = f.svc.CastVote(f.ctx, VoteInput{SeasonID: "s1", VoterID: "r2", TargetID: "b1"})
	requireCode(t, err, apperrors.CodeVoteClosed)

	f.stepUntil(season.PhaseMergeCheck)
	audit, err = f.svc.VoteRound(f.ctx, "s1", 1, vote.RoundMain)
	if err != nil {
		t.Fatalf("vote round: %v", err)
	}
	if audit.Round.Status != storage.VoteRoundTallied || len(audit.Votes) != 1 || !audit.Votes[0].IdolPlayed {
		t.Fatalf("expected the negated ballot after tally, got %+v", audit)
	}
}

func TestControlSignals(t *testing.T) {
	f := newFixture(t)
	f.startSeason()
	f.stepUntil(season.PhaseCampClose)

	sn, err := f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalPause, ActorID: "gm"})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if sn.RunState != season.RunPaused || sn.PausedRemaining != 8*time.Hour {
		t.Fatalf("unexpected paused season: %+v", sn)
	}
	_, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalPause})
	requireCode(t, err, apperrors.CodeSeasonPaused)

	sn, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalExtend, Duration: time.Hour})
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if sn.PausedRemaining != 9*time.Hour {
		t.Fatalf("expected 9h remaining, got %s", sn.PausedRemaining)
	}
	f.advanceTo(testStart.Add(24 * time.Hour))
	sn, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalResume})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if want := f.clock().Add(9 * time.Hour); !sn.PhaseDeadline.Equal(want) {
		t.Fatalf("deadline = %s, want %s", sn.PhaseDeadline, want)
	}
	sn, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalSkip})
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !sn.Due(f.clock()) {
		t.Fatal("expected the skipped phase to be due")
	}

	_, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: "teleport"})
	requireCode(t, err, apperrors.CodeUnknownControlSignal)
	_, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalSideEvent})
	requireCode(t, err, apperrors.CodeInvalidArgument)
	_, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalResumeStalled})
	requireCode(t, err, apperrors.CodeSeasonNotStalled)

	if _, err := f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalSideEvent, Name: "storm", Note: "camp flooded"}); err != nil {
		t.Fatalf("side event: %v", err)
	}
	side := f.eventKinds(event.KindSideEventTriggered)
	if len(side) != 1 || side[0].EntityID != "storm" || side[0].ActorType != event.ActorGM {
		t.Fatalf("unexpected side events: %+v", side)
	}

	sn, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalAbort})
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if !sn.Terminal() {
		t.Fatal("expected aborted season to be terminal")
	}
	_, err = f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalResume})
	requireCode(t, err, apperrors.CodeSeasonTerminal)

	for kind, want := range map[event.Kind]int{
		event.KindSeasonPaused:  1,
		event.KindPhaseExtended: 1,
		event.KindSeasonResumed: 1,
		event.KindPhaseSkipped:  1,
		event.KindSeasonAborted: 1,
	} {
		if got := len(f.eventKinds(kind)); got != want {
			t.Fatalf("%s events = %d, want %d", kind, got, want)
		}
	}
	if len(f.waker.wake) != 6 {
		t.Fatalf("expected a wake per applied signal, got %d", len(f.waker.wake))
	}
}

func TestResumeStalledClearsStall(t *testing.T) {
	f := newFixture(t)
	f.startSeason()

	if _, err := f.orch.Stall(f.ctx, "s1", season.PhaseDayStart, fmt.Errorf("disk on fire")); err != nil {
		t.Fatalf("stall: %v", err)
	}
	f.advanceTo(testStart.Add(time.Minute))
	sn, err := f.svc.Control(f.ctx, ControlInput{SeasonID: "s1", Signal: SignalResumeStalled})
	if err != nil {
		t.Fatalf("resume stalled: %v", err)
	}
	if sn.RunState != season.RunRunning || sn.StalledError != "" || !sn.Due(f.clock()) {
		t.Fatalf("unexpected season after clearing stall: %+v", sn)
	}
	if got := len(f.eventKinds(event.KindSeasonUnstalled)); got != 1 {
		t.Fatalf("expected one unstalled event, got %d", got)
	}
}

func TestApplyDeltaClampsStats(t *testing.T) {
	f := newFixture(t)
	f.startSeason()

	_, err := f.svc.ApplyDelta(f.ctx, DeltaInput{SeasonID: "s1", PlayerID: "r1", Delta: stats.Delta{Energy: 5}})
	requireCode(t, err, apperrors.CodeDailyStateMissing)

	f.stepUntil(season.PhaseMedicalCheck)
	rec, err := f.svc.ApplyDelta(f.ctx, DeltaInput{SeasonID: "s1", PlayerID: "r1", Delta: stats.Delta{Energy: 50, Hunger: -500}})
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if rec.State.Energy != stats.Max || rec.State.Hunger != stats.Min {
		t.Fatalf("expected clamped stats, got %+v", rec.State)
	}
	got, err := f.svc.GetDailyState(f.ctx, "s1", "r1", 0)
	if err != nil {
		t.Fatalf("get daily state: %v", err)
	}
	if got.State != rec.State || got.Day != 1 {
		t.Fatalf("stored state %+v differs from %+v", got, rec)
	}
}

func TestSelectCompanionRequiresSelectionWindow(t *testing.T) {
	f := newFixture(t)
	f.startSeason()

	_, err := f.svc.SelectCompanion(f.ctx, CompanionInput{SeasonID: "s1", SelectorID: "r1", CompanionID: "b1"})
	requireCode(t, err, apperrors.CodeSelectionClosed)
}

func TestAuditReads(t *testing.T) {
	f := newFixture(t)
	f.startSeason()
	f.stepUntil(season.PhaseCampOpen)

	report, err := f.svc.VerifyChain(f.ctx, "s1")
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	if !report.Valid || report.Events == 0 {
		t.Fatalf("unexpected chain report: %+v", report)
	}
	events, err := f.svc.ListEvents(f.ctx, storage.EventQuery{SeasonID: "s1", Limit: 2})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("unexpected first page: %+v", events)
	}
	list, err := f.svc.ListChallenges(f.ctx, "s1", 1)
	if err != nil {
		t.Fatalf("list challenges: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no challenges before camp closes, got %d", len(list))
	}
	_, err = f.svc.VoteRound(f.ctx, "s1", 1, vote.Round("secret"))
	requireCode(t, err, apperrors.CodeInvalidArgument)
}
