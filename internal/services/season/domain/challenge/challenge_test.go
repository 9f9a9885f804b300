package challenge

import (
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/fairness"
)

var testNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

// sequenceSource returns numbered seeds so tests can predict house seeds.
type sequenceSource struct {
	n   int
	err error
}

func (s *sequenceSource) CommitSeed() (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	s.n++
	seed := fmt.Sprintf("house-%d", s.n)
	return seed, fairness.HashSeed(seed), nil
}

func (s *sequenceSource) GenerateServerSeed() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.n++
	return fmt.Sprintf("server-%d", s.n), nil
}

func individual(ids ...string) Instance {
	entrants := make([]Entrant, len(ids))
	for i, id := range ids {
		entrants[i] = Entrant{PlayerID: id}
	}
	return New(Key{SeasonID: "s1", Day: 3, Round: RoundImmunity}, KindIndividual, 0, entrants, testNow)
}

func TestEncounterID(t *testing.T) {
	key := Key{SeasonID: "s1", Day: 4, Round: RoundTiebreak}
	if got := key.EncounterID(); got != "s1/4/tiebreak" {
		t.Fatalf("encounter id = %q", got)
	}
}

func TestCommitRules(t *testing.T) {
	inst := individual("p1", "p2")
	hash := fairness.HashSeed("seed-p1")

	inst, err := inst.Commit("p1", hash, testNow)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	e, _, _ := inst.Entrant("p1")
	if e.CommitOrder != 1 || e.Source != SourcePlayer || e.CommittedAt == nil {
		t.Fatalf("entrant = %+v", e)
	}

	again, err := inst.Commit("p1", hash, testNow)
	if err != nil {
		t.Fatalf("repeat commit should be a no-op: %v", err)
	}
	if e2, _, _ := again.Entrant("p1"); e2.CommitOrder != 1 {
		t.Fatalf("repeat commit changed order: %+v", e2)
	}

	tests := []struct {
		name   string
		player string
		hash   string
		code   apperrors.Code
	}{
		{name: "different hash", player: "p1", hash: fairness.HashSeed("other"), code: apperrors.CodeChallengeCommitted},
		{name: "malformed", player: "p2", hash: "ABC", code: apperrors.CodeMalformedCommit},
		{name: "not entrant", player: "p9", hash: hash, code: apperrors.CodeNotEntrant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inst.Commit(tt.player, tt.hash, testNow)
			if !apperrors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestLockAssignsHouseSeedsBeforeServerSeed(t *testing.T) {
	inst := individual("p1", "p2", "p3")
	inst, _ = inst.Commit("p2", fairness.HashSeed("seed-p2"), testNow)

	src := &sequenceSource{}
	locked, err := inst.Lock(src, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if locked.Status != StatusLocked || locked.LockedAt == nil {
		t.Fatalf("status = %s", locked.Status)
	}
	// p1 and p3 get house-1 and house-2; the server seed is drawn last.
	if locked.ServerSeed != "server-3" {
		t.Fatalf("server seed = %q, want server-3", locked.ServerSeed)
	}
	if locked.SeedCommit != fairness.HashSeed("server-3") {
		t.Fatal("seed commit must hash the server seed")
	}
	p1, _, _ := locked.Entrant("p1")
	p3, _, _ := locked.Entrant("p3")
	if p1.Source != SourceHouse || p1.ClientSeed != "house-1" || p1.CommitOrder != 2 {
		t.Fatalf("p1 = %+v", p1)
	}
	if p3.ClientSeed != "house-2" || p3.CommitOrder != 3 {
		t.Fatalf("p3 = %+v", p3)
	}
	if inst.Status != StatusOpen {
		t.Fatal("lock must not mutate the receiver")
	}

	if _, err := locked.Lock(src, testNow); !apperrors.HasCode(err, apperrors.CodeChallengeNotOpen) {
		t.Fatalf("relock err = %v", err)
	}
	if _, err := locked.Commit("p2", fairness.HashSeed("late"), testNow); !apperrors.HasCode(err, apperrors.CodeChallengeNotOpen) {
		t.Fatalf("late commit err = %v", err)
	}
}

func TestLockPropagatesSourceFailure(t *testing.T) {
	inst := individual("p1")
	_, err := inst.Lock(&sequenceSource{err: errors.New("entropy exhausted")}, testNow)
	if err == nil {
		t.Fatal("expected lock failure")
	}
}

func TestRevealRules(t *testing.T) {
	inst := individual("p1", "p2")
	inst, _ = inst.Commit("p1", fairness.HashSeed("seed-p1"), testNow)

	if _, err := inst.Reveal("p1", "seed-p1", testNow); !apperrors.HasCode(err, apperrors.CodeChallengeNotLocked) {
		t.Fatalf("early reveal err = %v", err)
	}

	locked, err := inst.Lock(&sequenceSource{}, testNow)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := locked.Reveal("p1", "wrong", testNow); !apperrors.IsCategory(err, apperrors.CategoryIntegrity) {
		t.Fatalf("mismatch err = %v", err)
	}
	if locked.Ready() {
		t.Fatal("p1 has not revealed yet")
	}

	revealed, err := locked.Reveal("p1", "seed-p1", testNow)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if !revealed.Ready() {
		t.Fatal("expected challenge ready after reveal")
	}
	if _, err := revealed.Reveal("p1", "seed-p1", testNow); err != nil {
		t.Fatalf("repeat reveal should be a no-op: %v", err)
	}
}

func TestForfeitUnrevealed(t *testing.T) {
	inst := individual("p1", "p2")
	inst, _ = inst.Commit("p1", fairness.HashSeed("seed-p1"), testNow)
	inst, _ = inst.Commit("p2", fairness.HashSeed("seed-p2"), testNow)
	locked, _ := inst.Lock(&sequenceSource{}, testNow)
	locked, _ = locked.Reveal("p2", "seed-p2", testNow)

	forfeited, ids := locked.ForfeitUnrevealed()
	if len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("forfeits = %v", ids)
	}
	if !forfeited.Ready() {
		t.Fatal("forfeits make the challenge ready")
	}
	if _, err := forfeited.Reveal("p1", "seed-p1", testNow); err == nil {
		t.Fatal("forfeited entrants may not reveal")
	}
}

func TestPublicHidesSeedsUntilScored(t *testing.T) {
	inst := individual("p1")
	locked, _ := inst.Lock(&sequenceSource{}, testNow)
	view := locked.Public()
	if view.ServerSeed != "" || view.Entrants[0].ClientSeed != "" {
		t.Fatalf("locked view leaks seeds: %+v", view)
	}
	if view.SeedCommit == "" || view.Entrants[0].ClientSeedHash == "" {
		t.Fatal("commitments stay public")
	}
	if locked.Entrants[0].ClientSeed == "" {
		t.Fatal("public view must not mutate the instance")
	}

	results, err := Score(locked, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	scored := locked.WithResults(results, testNow).Public()
	if scored.ServerSeed == "" || scored.Entrants[0].ClientSeed == "" {
		t.Fatal("scored view publishes seeds")
	}
}
