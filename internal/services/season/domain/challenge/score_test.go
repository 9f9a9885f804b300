package challenge

import (
	"testing"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/fairness"
)

func lockedWithSeeds(t *testing.T, kind Kind, topN int, entrants []Entrant) Instance {
	t.Helper()
	inst := New(Key{SeasonID: "s1", Day: 2, Round: RoundImmunity}, kind, topN, entrants, testNow)
	for _, e := range entrants {
		var err error
		inst, err = inst.Commit(e.PlayerID, fairness.HashSeed("seed-"+e.PlayerID), testNow)
		if err != nil {
			t.Fatalf("commit %s: %v", e.PlayerID, err)
		}
	}
	inst, err := inst.Lock(&sequenceSource{}, testNow)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	for _, e := range entrants {
		inst, err = inst.Reveal(e.PlayerID, "seed-"+e.PlayerID, testNow)
		if err != nil {
			t.Fatalf("reveal %s: %v", e.PlayerID, err)
		}
	}
	return inst
}

func TestScoreIndividualAppliesModifiers(t *testing.T) {
	inst := lockedWithSeeds(t, KindIndividual, 0, []Entrant{{PlayerID: "p1"}, {PlayerID: "p2"}, {PlayerID: "p3"}})
	mods := map[string]Modifiers{
		"p1": {Energy: 90, ArchetypeBonus: 2},
		"p2": {Energy: 65, ItemBonus: 1},
		"p3": {Energy: 10},
	}

	results, err := Score(inst, mods)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(results.Entrants) != 3 {
		t.Fatalf("entrants = %d", len(results.Entrants))
	}

	wantPct := map[string]int{"p1": 100, "p2": 95, "p3": 80}
	wantBonus := map[string]int{"p1": 2, "p2": 1, "p3": 0}
	for _, line := range results.Entrants {
		roll := fairness.DeriveRoll(inst.ServerSeed, "seed-"+line.PlayerID, inst.EncounterID(), line.PlayerID)
		if line.BaseRoll != roll {
			t.Fatalf("%s roll = %d, want %d", line.PlayerID, line.BaseRoll, roll)
		}
		if line.MultiplierPercent != wantPct[line.PlayerID] || line.Bonus != wantBonus[line.PlayerID] {
			t.Fatalf("%s modifiers = %+v", line.PlayerID, line)
		}
		if line.Score != roll*wantPct[line.PlayerID]+wantBonus[line.PlayerID]*100 {
			t.Fatalf("%s score = %d", line.PlayerID, line.Score)
		}
		if line.Total != float64(line.Score)/100 {
			t.Fatalf("%s total = %v", line.PlayerID, line.Total)
		}
	}
	for i := 1; i < len(results.Entrants); i++ {
		if entrantLess(results.Entrants[i], results.Entrants[i-1]) {
			t.Fatalf("results not ranked: %+v", results.Entrants)
		}
		if results.Entrants[i].Rank != i+1 {
			t.Fatalf("rank = %d at %d", results.Entrants[i].Rank, i)
		}
	}
	if results.Winner != results.Entrants[0].PlayerID || len(results.Immune) != 1 || results.Immune[0] != results.Winner {
		t.Fatalf("winner = %q immune = %v", results.Winner, results.Immune)
	}
}

func TestEntrantTieBreaks(t *testing.T) {
	tests := []struct {
		name string
		a, b EntrantResult
	}{
		{name: "higher total", a: EntrantResult{Score: 1500, BaseRoll: 15, CommitOrder: 2}, b: EntrantResult{Score: 1400, BaseRoll: 19, CommitOrder: 1}},
		{name: "equal total higher base", a: EntrantResult{Score: 1500, BaseRoll: 15, CommitOrder: 2}, b: EntrantResult{Score: 1500, BaseRoll: 13, CommitOrder: 1}},
		{name: "equal total and base earlier commit", a: EntrantResult{Score: 1500, BaseRoll: 15, CommitOrder: 1}, b: EntrantResult{Score: 1500, BaseRoll: 15, CommitOrder: 2}},
		{name: "forfeit trails", a: EntrantResult{Score: 80, BaseRoll: 1, CommitOrder: 9}, b: EntrantResult{Forfeit: true, CommitOrder: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !entrantLess(tt.a, tt.b) || entrantLess(tt.b, tt.a) {
				t.Fatalf("expected %+v ahead of %+v", tt.a, tt.b)
			}
		})
	}
}

func TestScoreTeamUsesTopN(t *testing.T) {
	entrants := []Entrant{
		{PlayerID: "r1", Team: "red"}, {PlayerID: "r2", Team: "red"}, {PlayerID: "r3", Team: "red"},
		{PlayerID: "b1", Team: "blue"}, {PlayerID: "b2", Team: "blue"},
		{PlayerID: "g1", Team: "green"}, {PlayerID: "g2", Team: "green"},
	}
	inst := lockedWithSeeds(t, KindTeam, 2, entrants)
	results, err := Score(inst, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(results.Teams) != 3 {
		t.Fatalf("teams = %+v", results.Teams)
	}

	byPlayer := make(map[string]EntrantResult)
	for _, line := range results.Entrants {
		byPlayer[line.PlayerID] = line
	}
	for _, team := range results.Teams {
		if len(team.Counted) > 2 {
			t.Fatalf("%s counted %d members", team.Team, len(team.Counted))
		}
		sum := 0
		for _, id := range team.Counted {
			sum += byPlayer[id].Score
		}
		if sum != team.Score {
			t.Fatalf("%s score = %d, want %d", team.Team, team.Score, sum)
		}
	}
	red := results.Teams[0]
	for _, tr := range results.Teams {
		if tr.Team == "red" {
			red = tr
		}
	}
	// The counted red members are the two best red lines.
	dropped := ""
	for _, id := range []string{"r1", "r2", "r3"} {
		if id != red.Counted[0] && id != red.Counted[1] {
			dropped = id
		}
	}
	for _, id := range red.Counted {
		if entrantLess(byPlayer[dropped], byPlayer[id]) {
			t.Fatalf("counted %s but dropped better %s", id, dropped)
		}
	}

	winner := results.Teams[0].Team
	if results.Winner != winner {
		t.Fatalf("winner = %q, want %q", results.Winner, winner)
	}
	for _, id := range results.Immune {
		if byPlayer[id].Team != winner {
			t.Fatalf("immune %s is not on %s", id, winner)
		}
	}
}

func TestScoreTeamTieFallsBackToStableOrder(t *testing.T) {
	inst := Instance{Kind: KindTeam, TopN: 1, Teams: []string{"blue", "red"}}
	ranked := []EntrantResult{
		{PlayerID: "r1", Team: "red", Score: 1000, BaseRoll: 10},
		{PlayerID: "b1", Team: "blue", Score: 1000, BaseRoll: 10},
	}
	teams := rankTeams(inst, ranked)
	if teams[0].Team != "blue" || teams[0].Rank != 1 || teams[1].Rank != 2 {
		t.Fatalf("teams = %+v", teams)
	}
}

func TestScoreGuards(t *testing.T) {
	open := individual("p1")
	if _, err := Score(open, nil); !apperrors.HasCode(err, apperrors.CodeChallengeNotReady) {
		t.Fatalf("open score err = %v", err)
	}

	inst := individual("p1", "p2")
	inst, _ = inst.Commit("p1", fairness.HashSeed("seed-p1"), testNow)
	locked, _ := inst.Lock(&sequenceSource{}, testNow)
	if _, err := Score(locked, nil); !apperrors.HasCode(err, apperrors.CodeChallengeNotReady) {
		t.Fatalf("unrevealed score err = %v", err)
	}

	ready, _ := locked.ForfeitUnrevealed()
	results, err := Score(ready, nil)
	if err != nil {
		t.Fatalf("score with forfeit: %v", err)
	}
	if last := results.Entrants[len(results.Entrants)-1]; last.PlayerID != "p1" || !last.Forfeit || last.Total != 0 {
		t.Fatalf("forfeit line = %+v", last)
	}

	scored := ready.WithResults(results, testNow)
	if _, err := Score(scored, nil); !apperrors.HasCode(err, apperrors.CodeChallengeAlreadyScored) {
		t.Fatalf("rescore err = %v", err)
	}
	if scored.Results.Winner != results.Winner {
		t.Fatal("stored results changed")
	}
}

func TestScoreDetectsTamperedSeeds(t *testing.T) {
	inst := lockedWithSeeds(t, KindIndividual, 0, []Entrant{{PlayerID: "p1"}, {PlayerID: "p2"}})

	tampered := inst.cloneEntrants()
	tampered.ServerSeed = "swapped"
	if _, err := Score(tampered, nil); !apperrors.HasCode(err, apperrors.CodeRollVerification) {
		t.Fatalf("server seed tamper err = %v", err)
	}

	tampered = inst.cloneEntrants()
	tampered.Entrants[1].ClientSeed = "swapped"
	if _, err := Score(tampered, nil); !apperrors.HasCode(err, apperrors.CodeRollVerification) {
		t.Fatalf("client seed tamper err = %v", err)
	}
}

func TestScoreAllForfeitGrantsNoImmunity(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		entrants []Entrant
	}{
		{name: "individual", kind: KindIndividual, entrants: []Entrant{{PlayerID: "p1"}, {PlayerID: "p2"}}},
		{name: "team", kind: KindTeam, entrants: []Entrant{
			{PlayerID: "r1", Team: "red"},
			{PlayerID: "r2", Team: "red"},
			{PlayerID: "b1", Team: "blue"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := New(Key{SeasonID: "s1", Day: 3, Round: RoundImmunity}, tt.kind, 0, tt.entrants, testNow)
			for _, e := range tt.entrants {
				var err error
				inst, err = inst.Commit(e.PlayerID, fairness.HashSeed("seed-"+e.PlayerID), testNow)
				if err != nil {
					t.Fatalf("commit %s: %v", e.PlayerID, err)
				}
			}
			locked, err := inst.Lock(&sequenceSource{}, testNow)
			if err != nil {
				t.Fatalf("lock: %v", err)
			}
			ready, forfeits := locked.ForfeitUnrevealed()
			if len(forfeits) != len(tt.entrants) {
				t.Fatalf("forfeits = %v", forfeits)
			}

			results, err := Score(ready, nil)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			if results.Winner != "" || len(results.Immune) != 0 {
				t.Fatalf("winner = %q immune = %v, want none", results.Winner, results.Immune)
			}
			if len(results.Entrants) != len(tt.entrants) {
				t.Fatalf("entrants still ranked: %+v", results.Entrants)
			}
		})
	}
}
