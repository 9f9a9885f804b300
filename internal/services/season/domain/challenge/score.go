package challenge

import (
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/fairness"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
)

// DefaultTopN is the number of member totals that count toward a team score.
const DefaultTopN = 3

// Modifiers are the per-entrant inputs besides the roll.
type Modifiers struct {
	Energy         int `json:"energy"`
	ArchetypeBonus int `json:"archetype_bonus,omitempty"`
	ItemBonus      int `json:"item_bonus,omitempty"`
}

// EntrantResult is one entrant's scored line. Score is in hundredths so that
// ranking never compares floats.
type EntrantResult struct {
	PlayerID          string  `json:"player_id"`
	Team              string  `json:"team,omitempty"`
	CommitOrder       int     `json:"commit_order"`
	BaseRoll          int     `json:"base_roll"`
	MultiplierPercent int     `json:"multiplier_percent"`
	Bonus             int     `json:"bonus"`
	Score             int     `json:"score"`
	Total             float64 `json:"total"`
	Rank              int     `json:"rank"`
	Forfeit           bool    `json:"forfeit,omitempty"`
}

// TeamResult is one team's scored line.
type TeamResult struct {
	Team      string   `json:"team"`
	Score     int      `json:"score"`
	Total     float64  `json:"total"`
	BaseRolls int      `json:"base_rolls"`
	Counted   []string `json:"counted"`
	Rank      int      `json:"rank"`
}

// Results are ranked challenge results. Entrants and Teams are in rank order.
type Results struct {
	Kind     Kind            `json:"kind"`
	Entrants []EntrantResult `json:"entrants"`
	Teams    []TeamResult    `json:"teams,omitempty"`
	Winner   string          `json:"winner"`
	Immune   []string        `json:"immune"`
}

// Ranked returns entrant ids best first.
func (r Results) Ranked() []string {
	out := make([]string, len(r.Entrants))
	for i, e := range r.Entrants {
		out[i] = e.PlayerID
	}
	return out
}

// Top returns the best-ranked entrant.
func (r Results) Top() string {
	if len(r.Entrants) == 0 {
		return ""
	}
	return r.Entrants[0].PlayerID
}

// Bottom returns the worst-ranked entrant.
func (r Results) Bottom() string {
	if len(r.Entrants) == 0 {
		return ""
	}
	return r.Entrants[len(r.Entrants)-1].PlayerID
}

// Score computes ranked results for a locked challenge whose entrants have
// all revealed or forfeited. The stored seeds are re-verified first; a
// failure is an integrity error and nothing is scored.
func Score(inst Instance, mods map[string]Modifiers) (Results, error) {
	switch {
	case inst.Status == StatusScored:
		return Results{}, apperrors.New(apperrors.CodeChallengeAlreadyScored, fmt.Sprintf("challenge %s already scored", inst.Key))
	case inst.Status != StatusLocked:
		return Results{}, apperrors.New(apperrors.CodeChallengeNotReady, fmt.Sprintf("challenge %s is not locked", inst.Key))
	case !inst.Ready():
		return Results{}, apperrors.New(apperrors.CodeChallengeNotReady, fmt.Sprintf("challenge %s has unrevealed entrants", inst.Key))
	case len(inst.Entrants) == 0:
		return Results{}, apperrors.New(apperrors.CodeChallengeUnscorable, fmt.Sprintf("challenge %s has no entrants", inst.Key))
	}
	if !fairness.VerifyCommit(inst.ServerSeed, inst.SeedCommit) {
		return Results{}, apperrors.New(apperrors.CodeRollVerification, "server seed does not match published commitment")
	}

	encounter := inst.EncounterID()
	lines := make([]EntrantResult, 0, len(inst.Entrants))
	for _, e := range inst.Entrants {
		line := EntrantResult{PlayerID: e.PlayerID, Team: e.Team, CommitOrder: e.CommitOrder, Forfeit: e.Forfeit}
		if !e.Forfeit {
			if !fairness.VerifyCommit(e.ClientSeed, e.ClientSeedHash) {
				return Results{}, apperrors.WithMetadata(apperrors.CodeRollVerification, "stored client seed does not match commitment", map[string]string{"SubjectID": e.PlayerID})
			}
			m := mods[e.PlayerID]
			line.BaseRoll = fairness.DeriveRoll(inst.ServerSeed, e.ClientSeed, encounter, e.PlayerID)
			line.MultiplierPercent = stats.EffectivenessPercent(m.Energy)
			line.Bonus = m.ArchetypeBonus + m.ItemBonus
			line.Score = line.BaseRoll*line.MultiplierPercent + line.Bonus*100
		}
		line.Total = float64(line.Score) / 100
		lines = append(lines, line)
	}

	sort.SliceStable(lines, func(a, b int) bool { return entrantLess(lines[a], lines[b]) })
	for idx := range lines {
		lines[idx].Rank = idx + 1
	}

	// Nobody wins immunity on a forfeit: a leader with no revealed seed
	// leaves Winner and Immune empty.
	results := Results{Kind: inst.Kind, Entrants: lines}
	if inst.Kind == KindTeam {
		results.Teams = rankTeams(inst, lines)
		if len(results.Teams) > 0 && teamRevealed(lines, results.Teams[0].Team) {
			results.Winner = results.Teams[0].Team
			for _, line := range lines {
				if line.Team == results.Winner {
					results.Immune = append(results.Immune, line.PlayerID)
				}
			}
			sort.Strings(results.Immune)
		}
		return results, nil
	}
	if !lines[0].Forfeit {
		results.Winner = lines[0].PlayerID
		results.Immune = []string{lines[0].PlayerID}
	}
	return results, nil
}

func teamRevealed(lines []EntrantResult, team string) bool {
	for _, line := range lines {
		if line.Team == team && !line.Forfeit {
			return true
		}
	}
	return false
}

// entrantLess orders by total, then unmodified roll, then commit order.
// Forfeits always trail.
func entrantLess(a, b EntrantResult) bool {
	if a.Forfeit != b.Forfeit {
		return !a.Forfeit
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.BaseRoll != b.BaseRoll {
		return a.BaseRoll > b.BaseRoll
	}
	return a.CommitOrder < b.CommitOrder
}

func rankTeams(inst Instance, ranked []EntrantResult) []TeamResult {
	topN := inst.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	order := make(map[string]int, len(inst.Teams))
	byTeam := make(map[string]*TeamResult, len(inst.Teams))
	teams := make([]*TeamResult, 0, len(inst.Teams))
	for idx, name := range inst.Teams {
		order[name] = idx
		tr := &TeamResult{Team: name}
		byTeam[name] = tr
		teams = append(teams, tr)
	}
	for _, line := range ranked {
		tr, ok := byTeam[line.Team]
		if !ok || len(tr.Counted) >= topN {
			continue
		}
		tr.Counted = append(tr.Counted, line.PlayerID)
		tr.Score += line.Score
		tr.BaseRolls += line.BaseRoll
	}

	sort.SliceStable(teams, func(a, b int) bool {
		ta, tb := teams[a], teams[b]
		if ta.Score != tb.Score {
			return ta.Score > tb.Score
		}
		if ta.BaseRolls != tb.BaseRolls {
			return ta.BaseRolls > tb.BaseRolls
		}
		return order[ta.Team] < order[tb.Team]
	})
	out := make([]TeamResult, len(teams))
	for idx, tr := range teams {
		tr.Rank = idx + 1
		tr.Total = float64(tr.Score) / 100
		out[idx] = *tr
	}
	return out
}
