package stats

import (
	"math/rand"
	"testing"
)

func TestApplyClampsEveryStep(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	state := Full()
	for i := 0; i < 5000; i++ {
		delta := Delta{
			Hunger:  rng.Intn(301) - 150,
			Thirst:  rng.Intn(301) - 150,
			Comfort: rng.Intn(301) - 150,
			Energy:  rng.Intn(301) - 150,
		}
		state = state.Apply(delta)
		if !state.Valid() {
			t.Fatalf("step %d: state out of bounds: %+v", i, state)
		}
	}
}

func TestApplyExamples(t *testing.T) {
	tests := []struct {
		name  string
		start DailyState
		delta Delta
		want  DailyState
	}{
		{
			name:  "overflow clamps to max",
			start: DailyState{Hunger: 95, Thirst: 50, Comfort: 50, Energy: 50},
			delta: Delta{Hunger: 20},
			want:  DailyState{Hunger: 100, Thirst: 50, Comfort: 50, Energy: 50},
		},
		{
			name:  "underflow clamps to min",
			start: DailyState{Hunger: 10, Thirst: 5, Comfort: 50, Energy: 3},
			delta: Delta{Thirst: -20, Energy: -4},
			want:  DailyState{Hunger: 10, Thirst: 0, Comfort: 50, Energy: 0},
		},
		{
			name:  "alert preserved",
			start: DailyState{Hunger: 10, Thirst: 10, Comfort: 10, Energy: 10, MedicalAlert: true},
			delta: Delta{Comfort: 1},
			want:  DailyState{Hunger: 10, Thirst: 10, Comfort: 11, Energy: 10, MedicalAlert: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.start.Apply(tt.delta); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNeedsEvacuation(t *testing.T) {
	at := DailyState{Hunger: 20, Thirst: 20, Comfort: 10}
	if !at.NeedsEvacuation(DefaultMedicalThreshold) {
		t.Fatal("vitals equal to the threshold must evacuate")
	}
	above := DailyState{Hunger: 20, Thirst: 20, Comfort: 11}
	if above.NeedsEvacuation(DefaultMedicalThreshold) {
		t.Fatal("vitals above the threshold must not evacuate")
	}
}

func TestDecayScaling(t *testing.T) {
	base := DefaultDecay()
	if got := base.Scaled(1); got != (Delta{Hunger: -6, Thirst: -8, Comfort: -4, Energy: -5}) {
		t.Fatalf("unscaled = %+v", got)
	}
	// 6*0.85=5.1, 8*0.85=6.8, 4*0.85=3.4, 5*0.85=4.25
	if got := base.Scaled(0.85); got != (Delta{Hunger: -5, Thirst: -7, Comfort: -3, Energy: -4}) {
		t.Fatalf("survivalist = %+v", got)
	}
	if got := base.Scaled(-1); !got.IsZero() {
		t.Fatalf("negative multiplier should not heal, got %+v", got)
	}
}

func TestNextDayClearsAlert(t *testing.T) {
	prev := DailyState{Hunger: 3, Thirst: 3, Comfort: 3, Energy: 3, MedicalAlert: true}
	next := NextDay(prev, DefaultDecay(), 1)
	if next != (DailyState{}) {
		t.Fatalf("next = %+v", next)
	}
}

func TestEffectivenessTiers(t *testing.T) {
	cases := map[int]int{100: 100, 80: 100, 79: 95, 60: 95, 59: 90, 40: 90, 39: 80, 0: 80}
	for energy, want := range cases {
		if got := EffectivenessPercent(energy); got != want {
			t.Fatalf("energy %d: got %d, want %d", energy, got, want)
		}
	}
	if Effectiveness(65) != 0.95 {
		t.Fatalf("effectiveness(65) = %v", Effectiveness(65))
	}
}
