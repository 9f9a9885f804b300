// Package stats models a player's per-day survival state.
package stats

import "math"

const (
	// Min is the lower bound of every stat.
	Min = 0
	// Max is the upper bound of every stat.
	Max = 100
	// DefaultMedicalThreshold is the vitals total at or below which a player
	// is evacuated.
	DefaultMedicalThreshold = 50
)

// DailyState is one player's stats for one day.
type DailyState struct {
	Hunger       int  `json:"hunger"`
	Thirst       int  `json:"thirst"`
	Comfort      int  `json:"comfort"`
	Energy       int  `json:"energy"`
	MedicalAlert bool `json:"medical_alert"`
}

// Delta is a signed change to a DailyState.
type Delta struct {
	Hunger  int `json:"hunger,omitempty"`
	Thirst  int `json:"thirst,omitempty"`
	Comfort int `json:"comfort,omitempty"`
	Energy  int `json:"energy,omitempty"`
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Full returns the day-one state.
func Full() DailyState {
	return DailyState{Hunger: Max, Thirst: Max, Comfort: Max, Energy: Max}
}

// Clamp returns value bounded to [Min, Max].
func Clamp(value int) int {
	if value < Min {
		return Min
	}
	if value > Max {
		return Max
	}
	return value
}

// Apply returns the state after delta, with every stat clamped.
func (s DailyState) Apply(d Delta) DailyState {
	s.Hunger = Clamp(s.Hunger + d.Hunger)
	s.Thirst = Clamp(s.Thirst + d.Thirst)
	s.Comfort = Clamp(s.Comfort + d.Comfort)
	s.Energy = Clamp(s.Energy + d.Energy)
	return s
}

// Valid reports whether every stat is within bounds.
func (s DailyState) Valid() bool {
	for _, v := range []int{s.Hunger, s.Thirst, s.Comfort, s.Energy} {
		if v < Min || v > Max {
			return false
		}
	}
	return true
}

// Vitals is the medical total: hunger + thirst + comfort.
func (s DailyState) Vitals() int {
	return s.Hunger + s.Thirst + s.Comfort
}

// NeedsEvacuation reports whether vitals fell to or below threshold.
func (s DailyState) NeedsEvacuation(threshold int) bool {
	return s.Vitals() <= threshold
}

// Decay is the per-day loss of each stat before archetype scaling.
type Decay struct {
	Hunger  int `json:"hunger" env:"HUNGER"`
	Thirst  int `json:"thirst" env:"THIRST"`
	Comfort int `json:"comfort" env:"COMFORT"`
	Energy  int `json:"energy" env:"ENERGY"`
}

// DefaultDecay returns the base daily decay.
func DefaultDecay() Decay {
	return Decay{Hunger: 6, Thirst: 8, Comfort: 4, Energy: 5}
}

// Scaled returns the negative delta for one day of decay at multiplier.
func (d Decay) Scaled(multiplier float64) Delta {
	if multiplier < 0 {
		multiplier = 0
	}
	scale := func(v int) int {
		return -int(math.Round(float64(v) * multiplier))
	}
	return Delta{
		Hunger:  scale(d.Hunger),
		Thirst:  scale(d.Thirst),
		Comfort: scale(d.Comfort),
		Energy:  scale(d.Energy),
	}
}

// NextDay carries prev into a new day: decay is applied and the medical
// alert is cleared so the medical check can set it afresh.
func NextDay(prev DailyState, decay Decay, multiplier float64) DailyState {
	next := prev.Apply(decay.Scaled(multiplier))
	next.MedicalAlert = false
	return next
}

// EffectivenessPercent maps energy to a challenge multiplier in percent.
func EffectivenessPercent(energy int) int {
	switch {
	case energy >= 80:
		return 100
	case energy >= 60:
		return 95
	case energy >= 40:
		return 90
	default:
		return 80
	}
}

// Effectiveness maps energy to a challenge multiplier.
func Effectiveness(energy int) float64 {
	return float64(EffectivenessPercent(energy)) / 100
}
