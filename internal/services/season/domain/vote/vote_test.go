package vote

import (
	"reflect"
	"testing"
	"time"
)

func ballots(pairs ...string) []Vote {
	out := make([]Vote, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Vote{Round: RoundMain, VoterID: pairs[i], TargetID: pairs[i+1]})
	}
	return out
}

func TestTallyPlurality(t *testing.T) {
	got := Tally(ballots("A", "X", "B", "X", "C", "Y"), nil)
	if got.Eliminated != "X" || got.Tie {
		t.Fatalf("result = %+v", got)
	}
	if !reflect.DeepEqual(got.Tallies, map[string]int{"X": 2, "Y": 1}) {
		t.Fatalf("tallies = %v", got.Tallies)
	}
	if !reflect.DeepEqual(got.Voters["X"], []string{"A", "B"}) {
		t.Fatalf("voters = %v", got.Voters)
	}
}

func TestTallyIdolNegation(t *testing.T) {
	votes := ballots("A", "X", "B", "X", "C", "Y")
	votes[0].IdolPlayed = true

	got := Tally(votes, nil)
	if !reflect.DeepEqual(got.Tallies, map[string]int{"X": 1, "Y": 1}) {
		t.Fatalf("tallies = %v", got.Tallies)
	}
	if !got.Tie || got.Eliminated != "" {
		t.Fatalf("expected tie, got %+v", got)
	}
	if !reflect.DeepEqual(got.Tied, []string{"X", "Y"}) {
		t.Fatalf("tied = %v", got.Tied)
	}
	if !reflect.DeepEqual(got.Negated, []string{"A"}) {
		t.Fatalf("negated = %v", got.Negated)
	}
}

func TestTallyImmunityExclusion(t *testing.T) {
	got := Tally(ballots("A", "X", "B", "X", "C", "Y"), []string{"X"})
	if got.Eliminated != "Y" || got.Tie {
		t.Fatalf("result = %+v", got)
	}
	if _, ok := got.Tallies["X"]; ok {
		t.Fatal("immune target must not appear in tallies")
	}
	if !reflect.DeepEqual(got.Dropped, []string{"A", "B"}) {
		t.Fatalf("dropped = %v", got.Dropped)
	}
}

func TestTallyNoVotes(t *testing.T) {
	got := Tally(nil, nil)
	if got.Eliminated != "" || got.Tie || got.Counted() != 0 {
		t.Fatalf("result = %+v", got)
	}
}

func TestTallyDeterministic(t *testing.T) {
	votes := ballots("A", "X", "B", "Y", "C", "Z", "D", "X", "E", "Y")
	first := Tally(votes, []string{"Z"})
	for i := 0; i < 20; i++ {
		reversed := make([]Vote, len(votes))
		for j := range votes {
			reversed[len(votes)-1-j] = votes[j]
		}
		if got := Tally(reversed, []string{"Z"}); !reflect.DeepEqual(got, first) {
			t.Fatalf("tally depends on order: %+v vs %+v", got, first)
		}
	}
}

func TestLatestKeepsNewestBallot(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	votes := []Vote{
		{VoterID: "A", TargetID: "X", CastAt: t0},
		{VoterID: "B", TargetID: "Y", CastAt: t0},
		{VoterID: "A", TargetID: "Y", CastAt: t0.Add(time.Minute)},
	}
	got := Latest(votes)
	if len(got) != 2 || got[0].TargetID != "Y" || got[1].VoterID != "B" {
		t.Fatalf("latest = %+v", got)
	}
}

func TestApplyIdols(t *testing.T) {
	got := ApplyIdols(ballots("A", "X", "B", "Y"), []string{"X"})
	if !got[0].IdolPlayed || got[1].IdolPlayed {
		t.Fatalf("idols = %+v", got)
	}
}

func TestRevoteEligibility(t *testing.T) {
	e := RevoteEligibility([]string{"A", "B", "X", "Y"}, []string{"Y", "X"})
	if e.CanVote("X") || !e.CanVote("A") {
		t.Fatal("tied targets may not vote")
	}
	if e.CanTarget("A") || !e.CanTarget("Y") {
		t.Fatal("only tied targets may be voted for")
	}
	if !(Eligibility{}).CanVote("anyone") {
		t.Fatal("empty eligibility is unrestricted")
	}
}

func TestTallyJury(t *testing.T) {
	got := TallyJury(ballots("J1", "F1", "J2", "F1", "J3", "F2"))
	if got.Winner != "F1" || got.Tie {
		t.Fatalf("jury = %+v", got)
	}
	tied := TallyJury(ballots("J1", "F1", "J2", "F2"))
	if !tied.Tie || tied.Winner != "" {
		t.Fatalf("jury tie = %+v", tied)
	}
}
