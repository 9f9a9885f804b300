// Package vote tallies ballots into elimination decisions.
//
// Tally is pure: identical ballots and immunity always produce identical
// results, so it is safe to re-run during retries.
package vote

import (
	"sort"
	"time"
)

// Round identifies which ballot box a vote belongs to.
type Round string

const (
	RoundMain   Round = "main"
	RoundRevote Round = "revote"
	RoundJury   Round = "jury"
)

// Valid reports whether the round is known.
func (r Round) Valid() bool {
	switch r {
	case RoundMain, RoundRevote, RoundJury:
		return true
	default:
		return false
	}
}

// Vote is one ballot. A later ballot from the same voter in the same round
// replaces the earlier one while the round is open.
type Vote struct {
	SeasonID   string     `json:"season_id"`
	Day        int        `json:"day"`
	Round      Round      `json:"round"`
	VoterID    string     `json:"voter_id"`
	TargetID   string     `json:"target_id"`
	IdolPlayed bool       `json:"idol_played"`
	CastAt     time.Time  `json:"cast_at"`
	RevealedAt *time.Time `json:"revealed_at,omitempty"`
}

// Result is the outcome of a tally.
type Result struct {
	// Eliminated is the target with the strict maximum, or empty.
	Eliminated string `json:"eliminated,omitempty"`
	// Tie is set when two or more targets share the maximum.
	Tie bool `json:"tie"`
	// Tied lists the targets sharing the maximum, sorted.
	Tied []string `json:"tied,omitempty"`
	// Tallies counts the ballots that survived negation and immunity.
	Tallies map[string]int `json:"tallies"`
	// Voters lists who voted for each counted target, sorted.
	Voters map[string][]string `json:"voters"`
	// Negated lists voters whose ballot was cancelled by an idol.
	Negated []string `json:"negated,omitempty"`
	// Dropped lists voters whose ballot targeted an immune player.
	Dropped []string `json:"dropped,omitempty"`
}

// Counted is the number of ballots that contributed to Tallies.
func (r Result) Counted() int {
	total := 0
	for _, n := range r.Tallies {
		total += n
	}
	return total
}

// Tally counts votes. Idol-negated ballots are excluded entirely, ballots
// against immune players are dropped, and the strict maximum is eliminated.
// Ties are reported and never resolved here.
func Tally(votes []Vote, immuneIDs []string) Result {
	immune := make(map[string]bool, len(immuneIDs))
	for _, id := range immuneIDs {
		immune[id] = true
	}

	result := Result{
		Tallies: map[string]int{},
		Voters:  map[string][]string{},
	}
	for _, v := range votes {
		switch {
		case v.IdolPlayed:
			result.Negated = append(result.Negated, v.VoterID)
		case immune[v.TargetID]:
			result.Dropped = append(result.Dropped, v.VoterID)
		default:
			result.Tallies[v.TargetID]++
			result.Voters[v.TargetID] = append(result.Voters[v.TargetID], v.VoterID)
		}
	}
	for target := range result.Voters {
		sort.Strings(result.Voters[target])
	}
	sort.Strings(result.Negated)
	sort.Strings(result.Dropped)

	leaders := Leaders(result.Tallies)
	switch len(leaders) {
	case 0:
	case 1:
		result.Eliminated = leaders[0]
	default:
		result.Tie = true
		result.Tied = leaders
	}
	return result
}

// Leaders returns the targets holding the maximum count, sorted.
func Leaders(tallies map[string]int) []string {
	best := 0
	var leaders []string
	for target, n := range tallies {
		switch {
		case n > best:
			best = n
			leaders = []string{target}
		case n == best && n > 0:
			leaders = append(leaders, target)
		}
	}
	sort.Strings(leaders)
	return leaders
}

// JuryResult is the outcome of the finale vote.
type JuryResult struct {
	Winner  string              `json:"winner,omitempty"`
	Tie     bool                `json:"tie"`
	Tied    []string            `json:"tied,omitempty"`
	Tallies map[string]int      `json:"tallies"`
	Voters  map[string][]string `json:"voters"`
}

// TallyJury counts jury ballots for a winner. The strict maximum wins.
func TallyJury(votes []Vote) JuryResult {
	r := Tally(votes, nil)
	return JuryResult{
		Winner:  r.Eliminated,
		Tie:     r.Tie,
		Tied:    r.Tied,
		Tallies: r.Tallies,
		Voters:  r.Voters,
	}
}

// Latest keeps the most recent ballot per voter, ordered by voter id.
func Latest(votes []Vote) []Vote {
	byVoter := make(map[string]Vote, len(votes))
	for _, v := range votes {
		prev, ok := byVoter[v.VoterID]
		if !ok || !v.CastAt.Before(prev.CastAt) {
			byVoter[v.VoterID] = v
		}
	}
	out := make([]Vote, 0, len(byVoter))
	for _, v := range byVoter {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out
}

// ApplyIdols flags every ballot against an idol holder as negated.
func ApplyIdols(votes []Vote, holders []string) []Vote {
	if len(holders) == 0 {
		return votes
	}
	held := make(map[string]bool, len(holders))
	for _, h := range holders {
		held[h] = true
	}
	out := make([]Vote, len(votes))
	for i, v := range votes {
		if held[v.TargetID] {
			v.IdolPlayed = true
		}
		out[i] = v
	}
	return out
}

// Eligibility restricts who may vote for whom in a round. Empty sets mean
// unrestricted.
type Eligibility struct {
	Voters  []string `json:"voters,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

// CanVote reports whether voter may cast a ballot.
func (e Eligibility) CanVote(voter string) bool {
	return len(e.Voters) == 0 || contains(e.Voters, voter)
}

// CanTarget reports whether target may receive a ballot.
func (e Eligibility) CanTarget(target string) bool {
	return len(e.Targets) == 0 || contains(e.Targets, target)
}

// RevoteEligibility builds the revote ballot: only tied targets may receive
// votes and tied targets may not vote.
func RevoteEligibility(active, tied []string) Eligibility {
	voters := make([]string, 0, len(active))
	for _, id := range active {
		if !contains(tied, id) {
			voters = append(voters, id)
		}
	}
	targets := append([]string(nil), tied...)
	sort.Strings(voters)
	sort.Strings(targets)
	return Eligibility{Voters: voters, Targets: targets}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
