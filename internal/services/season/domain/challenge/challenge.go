// Package challenge runs the commit-reveal lifecycle of a challenge and
// scores it into ranked results.
package challenge

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/fairness"
)

// Kind selects team or individual scoring.
type Kind string

const (
	KindTeam       Kind = "team"
	KindIndividual Kind = "individual"
)

// Round names the purpose of a challenge within a day.
type Round string

const (
	RoundImmunity      Round = "immunity"
	RoundTiebreak      Round = "tiebreak"
	RoundFinalImmunity Round = "final_immunity"
	RoundFinalDuel     Round = "final_duel"
	RoundJuryTiebreak  Round = "jury_tiebreak"
)

// Status is the lifecycle position of a challenge.
type Status string

const (
	StatusOpen   Status = "open"
	StatusLocked Status = "locked"
	StatusScored Status = "scored"
)

// SeedSource records who produced an entrant's client seed.
type SeedSource string

const (
	SourcePlayer SeedSource = "player"
	SourceHouse  SeedSource = "house"
)

// Key identifies a challenge.
type Key struct {
	SeasonID string `json:"season_id"`
	Day      int    `json:"day"`
	Round    Round  `json:"round"`
}

// EncounterID binds rolls to this challenge.
func (k Key) EncounterID() string {
	return fmt.Sprintf("%s/%d/%s", k.SeasonID, k.Day, k.Round)
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.EncounterID()
}

// Entrant is one competitor's commitment state.
type Entrant struct {
	PlayerID       string     `json:"player_id"`
	Team           string     `json:"team,omitempty"`
	CommitOrder    int        `json:"commit_order,omitempty"`
	ClientSeedHash string     `json:"client_seed_hash,omitempty"`
	ClientSeed     string     `json:"client_seed,omitempty"`
	Source         SeedSource `json:"source,omitempty"`
	CommittedAt    *time.Time `json:"committed_at,omitempty"`
	RevealedAt     *time.Time `json:"revealed_at,omitempty"`
	Forfeit        bool       `json:"forfeit,omitempty"`
}

// Committed reports whether a commitment hash is recorded.
func (e Entrant) Committed() bool {
	return e.ClientSeedHash != ""
}

// Revealed reports whether the client seed is known.
func (e Entrant) Revealed() bool {
	return e.ClientSeed != ""
}

// Instance is one challenge.
type Instance struct {
	Key
	Kind Kind   `json:"kind"`
	TopN int    `json:"top_n,omitempty"`
	// Teams is the stable team order used as the last tie-break.
	Teams      []string   `json:"teams,omitempty"`
	Status     Status     `json:"status"`
	SeedCommit string     `json:"seed_commit,omitempty"`
	ServerSeed string     `json:"server_seed,omitempty"`
	Entrants   []Entrant  `json:"entrants"`
	Results    *Results   `json:"results,omitempty"`
	OpenedAt   time.Time  `json:"opened_at"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	ScoredAt   *time.Time `json:"scored_at,omitempty"`
}

// New opens a challenge for entrants.
func New(key Key, kind Kind, topN int, entrants []Entrant, now time.Time) Instance {
	inst := Instance{
		Key:      key,
		Kind:     kind,
		TopN:     topN,
		Status:   StatusOpen,
		OpenedAt: now.UTC(),
		Entrants: make([]Entrant, len(entrants)),
	}
	seen := make(map[string]bool)
	for i, e := range entrants {
		inst.Entrants[i] = Entrant{PlayerID: e.PlayerID, Team: e.Team}
		if kind == KindTeam && !seen[e.Team] {
			seen[e.Team] = true
			inst.Teams = append(inst.Teams, e.Team)
		}
	}
	return inst
}

// Entrant returns the entrant for playerID.
func (i Instance) Entrant(playerID string) (Entrant, int, bool) {
	for idx, e := range i.Entrants {
		if e.PlayerID == playerID {
			return e, idx, true
		}
	}
	return Entrant{}, -1, false
}

// HasEntrant reports whether playerID competes in the challenge.
func (i Instance) HasEntrant(playerID string) bool {
	_, _, ok := i.Entrant(playerID)
	return ok
}

func (i Instance) nextCommitOrder() int {
	next := 1
	for _, e := range i.Entrants {
		if e.CommitOrder >= next {
			next = e.CommitOrder + 1
		}
	}
	return next
}

func (i Instance) cloneEntrants() Instance {
	i.Entrants = append([]Entrant(nil), i.Entrants...)
	return i
}

// Commit records a client seed hash. Committing the same hash twice is a
// no-op; a different hash is rejected.
func (i Instance) Commit(playerID, hash string, now time.Time) (Instance, error) {
	if i.Status != StatusOpen {
		return i, apperrors.New(apperrors.CodeChallengeNotOpen, fmt.Sprintf("challenge %s is %s", i.Key, i.Status))
	}
	hash = strings.TrimSpace(hash)
	if !fairness.ValidHash(hash) {
		return i, apperrors.New(apperrors.CodeMalformedCommit, "commitment must be 64 lowercase hex characters")
	}
	entrant, idx, ok := i.Entrant(playerID)
	if !ok {
		return i, apperrors.WithMetadata(apperrors.CodeNotEntrant, "player is not an entrant", map[string]string{"PlayerID": playerID})
	}
	if entrant.Committed() {
		if entrant.ClientSeedHash == hash {
			return i, nil
		}
		return i, apperrors.New(apperrors.CodeChallengeCommitted, "commitment already recorded")
	}

	out := i.cloneEntrants()
	at := now.UTC()
	entrant.ClientSeedHash = hash
	entrant.Source = SourcePlayer
	entrant.CommitOrder = i.nextCommitOrder()
	entrant.CommittedAt = &at
	out.Entrants[idx] = entrant
	return out, nil
}

// Lock closes commitments. Entrants without a commitment receive a house
// seed, and only then is the server seed generated.
func (i Instance) Lock(src fairness.Source, now time.Time) (Instance, error) {
	if i.Status != StatusOpen {
		return i, apperrors.New(apperrors.CodeChallengeNotOpen, fmt.Sprintf("challenge %s is %s", i.Key, i.Status))
	}
	if src == nil {
		src = fairness.CryptoSource{}
	}
	out := i.cloneEntrants()
	at := now.UTC()
	for idx, e := range out.Entrants {
		if e.Committed() {
			continue
		}
		seed, hash, err := src.CommitSeed()
		if err != nil {
			return i, apperrors.Wrap(apperrors.CodeUnknown, "generate house seed", err)
		}
		e.ClientSeedHash = hash
		e.ClientSeed = seed
		e.Source = SourceHouse
		e.CommitOrder = out.nextCommitOrder()
		e.CommittedAt = &at
		e.RevealedAt = &at
		out.Entrants[idx] = e
	}

	serverSeed, err := src.GenerateServerSeed()
	if err != nil {
		return i, apperrors.Wrap(apperrors.CodeUnknown, "generate server seed", err)
	}
	out.ServerSeed = serverSeed
	out.SeedCommit = fairness.HashSeed(serverSeed)
	out.Status = StatusLocked
	out.LockedAt = &at
	return out, nil
}

// Reveal records a client seed after lock. The seed must match the stored
// commitment; a mismatch is an integrity error and nothing is recorded.
func (i Instance) Reveal(playerID, seed string, now time.Time) (Instance, error) {
	switch i.Status {
	case StatusOpen:
		return i, apperrors.New(apperrors.CodeChallengeNotLocked, "challenge is still accepting commitments")
	case StatusScored:
		return i, apperrors.New(apperrors.CodeChallengeAlreadyScored, "challenge already scored")
	}
	entrant, idx, ok := i.Entrant(playerID)
	if !ok {
		return i, apperrors.WithMetadata(apperrors.CodeNotEntrant, "player is not an entrant", map[string]string{"PlayerID": playerID})
	}
	if entrant.Forfeit {
		return i, apperrors.New(apperrors.CodeChallengeNotLocked, "reveal window closed")
	}
	if !fairness.VerifyCommit(seed, entrant.ClientSeedHash) {
		return i, apperrors.WithMetadata(apperrors.CodeCommitMismatch, "revealed seed does not match commitment", map[string]string{"PlayerID": playerID})
	}
	if entrant.Revealed() {
		return i, nil
	}

	out := i.cloneEntrants()
	at := now.UTC()
	entrant.ClientSeed = seed
	entrant.RevealedAt = &at
	out.Entrants[idx] = entrant
	return out, nil
}

// Ready reports whether every entrant has revealed or forfeited.
func (i Instance) Ready() bool {
	for _, e := range i.Entrants {
		if !e.Revealed() && !e.Forfeit {
			return false
		}
	}
	return true
}

// ForfeitUnrevealed marks every entrant still missing a seed as forfeit and
// returns their ids.
func (i Instance) ForfeitUnrevealed() (Instance, []string) {
	if i.Status != StatusLocked {
		return i, nil
	}
	out := i.cloneEntrants()
	var forfeits []string
	for idx, e := range out.Entrants {
		if !e.Revealed() && !e.Forfeit {
			e.Forfeit = true
			out.Entrants[idx] = e
			forfeits = append(forfeits, e.PlayerID)
		}
	}
	return out, forfeits
}

// WithResults marks the challenge scored.
func (i Instance) WithResults(results Results, now time.Time) Instance {
	at := now.UTC()
	i.Results = &results
	i.Status = StatusScored
	i.ScoredAt = &at
	return i
}

// Public returns the auditor view: the server seed and client seeds stay
// hidden until the challenge is scored.
func (i Instance) Public() Instance {
	out := i.cloneEntrants()
	if out.Status != StatusScored {
		out.ServerSeed = ""
		for idx := range out.Entrants {
			out.Entrants[idx].ClientSeed = ""
		}
	}
	return out
}
