// Package priority ranks tasks by deadline proximity and effort.
package priority

import (
	"math"
	"time"

	"taskrank/internal/domain"
)

const (
	MinScore = 1
	MaxScore = 10
)

// Config holds the deadline thresholds and point weights of the scoring rules.
type Config struct {
	// HighWithinDays puts a deadline in the HIGH bucket when at most this many whole days away.
	HighWithinDays int `yaml:"high_within_days"`
	// MediumWithinDays puts a deadline in the MEDIUM bucket when at most this many whole days away.
	MediumWithinDays int `yaml:"medium_within_days"`

	DeadlineHighPoints   int `yaml:"deadline_high_points"`
	DeadlineMediumPoints int `yaml:"deadline_medium_points"`
	EffortHighPoints     int `yaml:"effort_high_points"`
	EffortMediumPoints   int `yaml:"effort_medium_points"`

	// Bonuses applied by the combination rules.
	EitherHighBonus   int `yaml:"either_high_bonus"`
	BothMediumBonus   int `yaml:"both_medium_bonus"`
	EitherMediumBonus int `yaml:"either_medium_bonus"`
}

func DefaultConfig() Config {
	return Config{
		HighWithinDays:       1,
		MediumWithinDays:     3,
		DeadlineHighPoints:   4,
		DeadlineMediumPoints: 2,
		EffortHighPoints:     3,
		EffortMediumPoints:   2,
		EitherHighBonus:      3,
		BothMediumBonus:      2,
		EitherMediumBonus:    1,
	}
}

type Input struct {
	DueDate time.Time
	Effort  domain.Effort
	Status  domain.Status
}

type Result struct {
	Priority domain.Priority `json:"priority"`
	Score    int             `json:"score"`
}

type Scorer struct {
	Config Config
}

func New(cfg Config) Scorer {
	return Scorer{Config: cfg}
}

var defaultScorer = New(DefaultConfig())

// Score ranks in with the default configuration.
func Score(in Input, now time.Time) Result {
	return defaultScorer.Score(in, now)
}

// Score never fails. Unrecognised effort values land in the LOW effort bucket.
func (s Scorer) Score(in Input, now time.Time) Result {
	if in.Status == domain.StatusCompleted {
		return Result{Priority: domain.PriorityLow, Score: MinScore}
	}
	cfg := s.Config

	deadline := s.deadlineBucket(DaysUntil(in.DueDate, now))
	effort := effortBucket(in.Effort)

	score := MinScore
	switch deadline {
	case domain.PriorityHigh:
		score += cfg.DeadlineHighPoints
	case domain.PriorityMedium:
		score += cfg.DeadlineMediumPoints
	}
	switch effort {
	case domain.PriorityHigh:
		score += cfg.EffortHighPoints
	case domain.PriorityMedium:
		score += cfg.EffortMediumPoints
	}

	// Order matters: a HIGH bucket on either side wins before the MEDIUM rules.
	res := Result{Priority: domain.PriorityLow}
	switch {
	case deadline == domain.PriorityHigh || effort == domain.PriorityHigh:
		res.Priority = domain.PriorityHigh
		score += cfg.EitherHighBonus
	case deadline == domain.PriorityMedium && effort == domain.PriorityMedium:
		res.Priority = domain.PriorityHigh
		score += cfg.BothMediumBonus
	case deadline == domain.PriorityMedium || effort == domain.PriorityMedium:
		res.Priority = domain.PriorityMedium
		score += cfg.EitherMediumBonus
	}
	res.Score = clamp(score)
	return res
}

// DaysUntil returns the whole days from now to due, rounded down.
func DaysUntil(due, now time.Time) int {
	return int(math.Floor(due.Sub(now).Hours() / 24))
}

func (s Scorer) deadlineBucket(days int) domain.Priority {
	switch {
	case days <= s.Config.HighWithinDays:
		return domain.PriorityHigh
	case days <= s.Config.MediumWithinDays:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func effortBucket(e domain.Effort) domain.Priority {
	switch e {
	case domain.EffortLong:
		return domain.PriorityHigh
	case domain.EffortMedium:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
