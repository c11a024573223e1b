package gags

import (
	"fmt"
	"strings"
	"time"
)

// Status tracks where a gag sits in its lifecycle.
type Status string

const (
	StatusActive      Status = "active"
	StatusCoolingDown Status = "cooling_down"
	StatusExhausted   Status = "exhausted"
	StatusRetired     Status = "retired"
)

// Category classifies what kind of recurring joke a gag is.
type Category string

const (
	CategoryPersonalityTrait Category = "personality_trait"
	CategoryIncident         Category = "incident"
	CategoryRivalry          Category = "rivalry"
	CategoryCatchphrase      Category = "catchphrase"
	CategoryRunningJoke      Category = "running_joke"
	CategoryRelationship     Category = "relationship"
	CategoryLegacy           Category = "legacy"
)

// MaxFamiliarity caps how established a gag can become with the audience.
const MaxFamiliarity = 10

var validCategories = map[Category]struct{}{
	CategoryPersonalityTrait: {},
	CategoryIncident:         {},
	CategoryRivalry:          {},
	CategoryCatchphrase:      {},
	CategoryRunningJoke:      {},
	CategoryRelationship:     {},
	CategoryLegacy:           {},
}

var statusTransitions = map[Status][]Status{
	StatusActive:      {StatusCoolingDown, StatusExhausted, StatusRetired},
	StatusCoolingDown: {StatusActive, StatusExhausted, StatusRetired},
	StatusExhausted:   {StatusActive, StatusRetired},
	StatusRetired:     {StatusActive},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Gag is a recurring joke tracked across episodes. Character carries the
// gag's main subject and SecondaryCharacter the other half of rivalry or
// relationship gags; both empty marks a universal gag that fits any episode
// regardless of who features in it.
type Gag struct {
	ID                  int64
	Name                string
	Category            Category
	Character           string
	SecondaryCharacter  string
	Description         string
	Setup               string
	Punchline           string
	Variations          string
	Origin              string
	Tags                []string
	HumorRating         float64
	Status              Status
	TimesUsed           int
	MaxUses             int
	CooldownRaces       int
	LastUsedSeason      *int
	LastUsedRound       *int
	LastUsedAt          *time.Time
	AudienceFamiliarity int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsUniversal reports whether the gag applies to any character.
func (g *Gag) IsUniversal() bool {
	return strings.TrimSpace(g.Character) == "" && strings.TrimSpace(g.SecondaryCharacter) == ""
}

// Involves reports whether the named character features in the gag.
func (g *Gag) Involves(name string) bool {
	return name != "" && (g.Character == name || g.SecondaryCharacter == name)
}

// Usage records one deployment of a gag in one scene of one episode.
// (GagID, EpisodeID, SceneIndex) is the idempotency key; Season and Round
// locate the episode for cooldown distance.
type Usage struct {
	GagID      int64
	EpisodeID  int64
	SceneIndex int
	Season     int
	Round      int
	Context    string
	Excerpt    string
}

// Exhaustible reports whether the gag has a finite use budget.
func (g *Gag) Exhaustible() bool {
	return g.MaxUses > 0
}

// Validate checks required fields and value ranges.
func (g *Gag) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("gag name is required")
	}
	if _, ok := validCategories[g.Category]; !ok {
		return fmt.Errorf("unknown gag category %q", g.Category)
	}
	if g.HumorRating < 0 || g.HumorRating > 10 {
		return fmt.Errorf("humor rating must be within [0, 10], got %g", g.HumorRating)
	}
	if g.MaxUses < 0 {
		return fmt.Errorf("max uses must be non-negative, got %d", g.MaxUses)
	}
	if g.CooldownRaces < 0 {
		return fmt.Errorf("cooldown races must be non-negative, got %d", g.CooldownRaces)
	}
	if g.AudienceFamiliarity < 0 || g.AudienceFamiliarity > MaxFamiliarity {
		return fmt.Errorf("audience familiarity must be within [0, %d], got %d", MaxFamiliarity, g.AudienceFamiliarity)
	}
	return nil
}
