package season

import (
	"fmt"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
)

// Config holds the per-season rules. It is stored with the season so a
// running season is unaffected by daemon configuration changes.
type Config struct {
	TotalDays int `json:"total_days" env:"TOTAL_DAYS"`
	// FastForward reads every window in minutes instead of hours.
	FastForward bool `json:"fast_forward" env:"FAST_FORWARD"`

	CampHours      float64 `json:"camp_hours" env:"CAMP_HOURS"`
	CommitHours    float64 `json:"commit_hours" env:"COMMIT_HOURS"`
	RevealHours    float64 `json:"reveal_hours" env:"REVEAL_HOURS"`
	VoteHours      float64 `json:"vote_hours" env:"VOTE_HOURS"`
	SelectionHours float64 `json:"selection_hours" env:"SELECTION_HOURS"`

	MergeThreshold      int `json:"merge_threshold" env:"MERGE_THRESHOLD"`
	FinaleThreshold     int `json:"finale_threshold" env:"FINALE_THRESHOLD"`
	MedicalThreshold    int `json:"medical_threshold" env:"MEDICAL_THRESHOLD"`
	HeadToHeadThreshold int `json:"head_to_head_threshold" env:"HEAD_TO_HEAD_THRESHOLD"`
	TeamTopN            int `json:"team_top_n" env:"TEAM_TOP_N"`
	Finalists           int `json:"finalists" env:"FINALISTS"`

	Decay stats.Decay `json:"decay" envPrefix:"DECAY_"`
}

// DefaultConfig returns the standard season rules.
func DefaultConfig() Config {
	return Config{
		TotalDays:           39,
		CampHours:           8,
		CommitHours:         2,
		RevealHours:         1,
		VoteHours:           2,
		SelectionHours:      1,
		MergeThreshold:      10,
		FinaleThreshold:     4,
		MedicalThreshold:    stats.DefaultMedicalThreshold,
		HeadToHeadThreshold: 6,
		TeamTopN:            challenge.DefaultTopN,
		Finalists:           3,
		Decay:               stats.DefaultDecay(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	return c.WithDefaultsFrom(DefaultConfig())
}

// WithDefaultsFrom fills unset fields from d, then from DefaultConfig for
// anything d leaves unset. FastForward is set when either side sets it.
func (c Config) WithDefaultsFrom(d Config) Config {
	if d != DefaultConfig() {
		d = d.WithDefaults()
	}
	c.FastForward = c.FastForward || d.FastForward
	if c.TotalDays == 0 {
		c.TotalDays = d.TotalDays
	}
	if c.CampHours == 0 {
		c.CampHours = d.CampHours
	}
	if c.CommitHours == 0 {
		c.CommitHours = d.CommitHours
	}
	if c.RevealHours == 0 {
		c.RevealHours = d.RevealHours
	}
	if c.VoteHours == 0 {
		c.VoteHours = d.VoteHours
	}
	if c.SelectionHours == 0 {
		c.SelectionHours = d.SelectionHours
	}
	if c.MergeThreshold == 0 {
		c.MergeThreshold = d.MergeThreshold
	}
	if c.FinaleThreshold == 0 {
		c.FinaleThreshold = d.FinaleThreshold
	}
	if c.MedicalThreshold == 0 {
		c.MedicalThreshold = d.MedicalThreshold
	}
	if c.HeadToHeadThreshold == 0 {
		c.HeadToHeadThreshold = d.HeadToHeadThreshold
	}
	if c.TeamTopN == 0 {
		c.TeamTopN = d.TeamTopN
	}
	if c.Finalists == 0 {
		c.Finalists = d.Finalists
	}
	if c.Decay == (stats.Decay{}) {
		c.Decay = d.Decay
	}
	return c
}

// Validate rejects configurations the state machine cannot run.
func (c Config) Validate() error {
	switch {
	case c.TotalDays < 1:
		return invalidConfig("total days must be at least 1")
	case c.CampHours < 0 || c.CommitHours < 0 || c.RevealHours < 0 || c.VoteHours < 0 || c.SelectionHours < 0:
		return invalidConfig("phase windows must not be negative")
	case c.FinaleThreshold < 2:
		return invalidConfig("finale threshold must be at least 2")
	case c.MergeThreshold < c.FinaleThreshold:
		return invalidConfig("merge threshold must not be below the finale threshold")
	case c.Finalists < 2:
		return invalidConfig("at least two finalists are required")
	case c.TeamTopN < 1:
		return invalidConfig("team top-n must be at least 1")
	case c.MedicalThreshold < 0:
		return invalidConfig("medical threshold must not be negative")
	}
	return nil
}

// Duration converts a window to wall time.
func (c Config) Duration(w Window) time.Duration {
	var hours float64
	switch w {
	case WindowCamp:
		hours = c.CampHours
	case WindowCommit:
		hours = c.CommitHours
	case WindowReveal:
		hours = c.RevealHours
	case WindowVote:
		hours = c.VoteHours
	case WindowSelection:
		hours = c.SelectionHours
	default:
		return 0
	}
	unit := time.Hour
	if c.FastForward {
		unit = time.Minute
	}
	return time.Duration(hours * float64(unit))
}

func invalidConfig(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, fmt.Sprintf("season config: %s", reason), map[string]string{"Reason": reason})
}
