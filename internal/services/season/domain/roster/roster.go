// Package roster defines players, archetypes, and tribe composition.
package roster

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
)

// Archetype is a player's class.
type Archetype string

const (
	ArchetypeSurvivalist Archetype = "survivalist"
	ArchetypeAthlete     Archetype = "athlete"
	ArchetypeStrategist  Archetype = "strategist"
	ArchetypeSocialite   Archetype = "socialite"
)

// Valid reports whether the archetype is known.
func (a Archetype) Valid() bool {
	switch a {
	case ArchetypeSurvivalist, ArchetypeAthlete, ArchetypeStrategist, ArchetypeSocialite:
		return true
	default:
		return false
	}
}

// DecayMultiplier scales daily stat decay. Survivalists decay 15% slower.
func (a Archetype) DecayMultiplier() float64 {
	if a == ArchetypeSurvivalist {
		return 0.85
	}
	return 1
}

// ChallengeBonus is the flat bonus added to challenge totals.
func (a Archetype) ChallengeBonus() int {
	switch a {
	case ArchetypeAthlete:
		return 2
	case ArchetypeSurvivalist:
		return 1
	default:
		return 0
	}
}

// Status is a player's standing in the season.
type Status string

const (
	StatusActive     Status = "active"
	StatusEliminated Status = "eliminated"
	StatusEvacuated  Status = "evacuated"
)

// Role is what a player may still do in the season.
type Role string

const (
	RoleContestant Role = "contestant"
	RoleJuror      Role = "juror"
	RoleSpectator  Role = "spectator"
)

// Player is one season participant.
type Player struct {
	ID        string    `json:"id"`
	SeasonID  string    `json:"season_id"`
	Name      string    `json:"name"`
	Tribe     string    `json:"tribe"`
	Archetype Archetype `json:"archetype"`
	// ItemBonus is a flat challenge bonus granted by inventory.
	ItemBonus            int        `json:"item_bonus,omitempty"`
	Status               Status     `json:"status"`
	Role                 Role       `json:"role"`
	EliminatedDay        int        `json:"eliminated_day,omitempty"`
	EliminatedAfterMerge bool       `json:"eliminated_after_merge,omitempty"`
	EliminatedAt         *time.Time `json:"eliminated_at,omitempty"`
}

// Active reports whether the player is still competing.
func (p Player) Active() bool {
	return p.Status == StatusActive
}

// Eliminate marks a voted-out player. Players eliminated after the merge join
// the jury.
func (p Player) Eliminate(day int, merged bool, at time.Time) Player {
	p.Status = StatusEliminated
	p.EliminatedDay = day
	p.EliminatedAfterMerge = merged
	p.Role = RoleSpectator
	if merged {
		p.Role = RoleJuror
	}
	at = at.UTC()
	p.EliminatedAt = &at
	return p
}

// Evacuate marks a medically evacuated player. Evacuees never join the jury.
func (p Player) Evacuate(day int, at time.Time) Player {
	p.Status = StatusEvacuated
	p.Role = RoleSpectator
	p.EliminatedDay = day
	at = at.UTC()
	p.EliminatedAt = &at
	return p
}

// ActivePlayers returns the competing players in input order.
func ActivePlayers(players []Player) []Player {
	out := make([]Player, 0, len(players))
	for _, p := range players {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// Jurors returns the eliminated players who vote at the finale.
func Jurors(players []Player) []Player {
	out := make([]Player, 0)
	for _, p := range players {
		if p.Status == StatusEliminated && p.Role == RoleJuror {
			out = append(out, p)
		}
	}
	return out
}

// IDs returns player ids in input order.
func IDs(players []Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.ID
	}
	return out
}

// Tribes returns the distinct tribe names of players, sorted.
func Tribes(players []Player) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range players {
		if !seen[p.Tribe] {
			seen[p.Tribe] = true
			out = append(out, p.Tribe)
		}
	}
	sort.Strings(out)
	return out
}

// Normalize trims fields and fills defaults for a new roster entry.
func Normalize(p Player) Player {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Tribe = strings.TrimSpace(p.Tribe)
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Archetype == "" {
		p.Archetype = ArchetypeStrategist
	}
	p.Status = StatusActive
	p.Role = RoleContestant
	return p
}

// Validate checks a starting roster: unique ids, known archetypes, and at
// least two tribes of at least two players each.
func Validate(players []Player) error {
	seen := make(map[string]bool, len(players))
	perTribe := make(map[string]int)
	for _, p := range players {
		if p.ID == "" {
			return invalid("player id is required")
		}
		if seen[p.ID] {
			return invalid(fmt.Sprintf("duplicate player %s", p.ID))
		}
		seen[p.ID] = true
		if p.Tribe == "" {
			return invalid(fmt.Sprintf("player %s has no tribe", p.ID))
		}
		if !p.Archetype.Valid() {
			return invalid(fmt.Sprintf("player %s has unknown archetype %q", p.ID, p.Archetype))
		}
		if p.ItemBonus < 0 {
			return invalid(fmt.Sprintf("player %s has a negative item bonus", p.ID))
		}
		perTribe[p.Tribe]++
	}
	if len(perTribe) < 2 {
		return invalid("at least two tribes are required")
	}
	for tribe, n := range perTribe {
		if n < 2 {
			return invalid(fmt.Sprintf("tribe %s needs at least two players", tribe))
		}
	}
	return nil
}

func invalid(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeRosterInvalid, "roster invalid: "+reason, map[string]string{"Reason": reason})
}
