package calendar

import (
	"fmt"
	"strings"
	"time"
)

// WeekendKind distinguishes standard race weekends from sprint weekends.
type WeekendKind string

const (
	WeekendStandard WeekendKind = "standard"
	WeekendSprint   WeekendKind = "sprint"
)

// Race is one round of a season's calendar together with its session times.
// Optional sessions are nil when the weekend does not include them.
type Race struct {
	ID                    int64
	Season                int
	Round                 int
	Name                  string
	Circuit               string
	Country               string
	RaceStart             time.Time
	FP1Start              *time.Time
	FP2Start              *time.Time
	FP3Start              *time.Time
	SprintQualifyingStart *time.Time
	SprintStart           *time.Time
	QualifyingStart       *time.Time
	HasSprint             bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Kind reports whether this is a sprint weekend.
func (r *Race) Kind() WeekendKind {
	if r.HasSprint {
		return WeekendSprint
	}
	return WeekendStandard
}

// Label renders the conventional short identifier, e.g. "2026 R05 Monaco GP".
func (r *Race) Label() string {
	return fmt.Sprintf("%d R%02d %s", r.Season, r.Round, r.Name)
}

// sessions returns the weekend's sessions in canonical running order.
// Absent sessions are nil.
func (r *Race) sessions() []struct {
	name  string
	start *time.Time
} {
	return []struct {
		name  string
		start *time.Time
	}{
		{"fp1", r.FP1Start},
		{"fp2", r.FP2Start},
		{"fp3", r.FP3Start},
		{"sprint qualifying", r.SprintQualifyingStart},
		{"sprint", r.SprintStart},
		{"qualifying", r.QualifyingStart},
	}
}

// Validate checks required fields and that the sessions present respect
// the canonical weekend running order, everything strictly before the
// race itself.
func (r *Race) Validate() error {
	if r.Season <= 0 {
		return fmt.Errorf("race season must be positive, got %d", r.Season)
	}
	if r.Round <= 0 {
		return fmt.Errorf("race round must be positive, got %d", r.Round)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("race name is required")
	}
	if r.RaceStart.IsZero() {
		return fmt.Errorf("race start time is required")
	}
	if r.HasSprint && r.SprintStart == nil {
		return fmt.Errorf("sprint weekend %s is missing a sprint session time", r.Label())
	}
	var prevName string
	var prevStart *time.Time
	for _, session := range r.sessions() {
		if session.start == nil {
			continue
		}
		if !session.start.Before(r.RaceStart) {
			return fmt.Errorf("%s session of %s must start before the race", session.name, r.Label())
		}
		if prevStart != nil && !prevStart.Before(*session.start) {
			return fmt.Errorf("%s session of %s must start before %s", prevName, r.Label(), session.name)
		}
		prevName = session.name
		prevStart = session.start
	}
	return nil
}

// Before orders races by season then round.
func (r *Race) Before(other *Race) bool {
	if r.Season != other.Season {
		return r.Season < other.Season
	}
	return r.Round < other.Round
}
