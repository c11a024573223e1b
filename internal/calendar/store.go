package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paddock/internal/services"
	"paddock/internal/store"
)

// Store persists the race calendar.
type Store struct {
	db *store.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

const raceColumns = "id, season, round, name, circuit, country, race_start, fp1_start, fp2_start, fp3_start, sprint_qualifying_start, sprint_start, qualifying_start, has_sprint, created_at, updated_at"

// Upsert inserts or refreshes a race keyed by (season, round) and returns
// its row ID. Session times are replaced wholesale so calendar corrections
// propagate.
func (s *Store) Upsert(ctx context.Context, race *Race) (int64, error) {
	if race == nil {
		return 0, services.Categorize(errors.New("race is nil"), services.ErrValidation)
	}
	if err := race.Validate(); err != nil {
		return 0, services.Categorize(err, services.ErrValidation)
	}

	now := store.FormatTime(time.Now())
	_, err := s.db.Exec(ctx, `
		INSERT INTO races (season, round, name, circuit, country, race_start, fp1_start, fp2_start, fp3_start, sprint_qualifying_start, sprint_start, qualifying_start, has_sprint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(season, round) DO UPDATE SET
			name = excluded.name,
			circuit = excluded.circuit,
			country = excluded.country,
			race_start = excluded.race_start,
			fp1_start = excluded.fp1_start,
			fp2_start = excluded.fp2_start,
			fp3_start = excluded.fp3_start,
			sprint_qualifying_start = excluded.sprint_qualifying_start,
			sprint_start = excluded.sprint_start,
			qualifying_start = excluded.qualifying_start,
			has_sprint = excluded.has_sprint,
			updated_at = excluded.updated_at`,
		race.Season, race.Round, race.Name, race.Circuit, race.Country,
		store.FormatTime(race.RaceStart),
		store.NullableTime(race.FP1Start),
		store.NullableTime(race.FP2Start),
		store.NullableTime(race.FP3Start),
		store.NullableTime(race.SprintQualifyingStart),
		store.NullableTime(race.SprintStart),
		store.NullableTime(race.QualifyingStart),
		store.BoolToInt(race.HasSprint),
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert race %s: %w", race.Label(), err)
	}

	stored, err := s.GetBySeasonRound(ctx, race.Season, race.Round)
	if err != nil {
		return 0, err
	}
	race.ID = stored.ID
	return stored.ID, nil
}

// GetByID fetches a single race.
func (s *Store) GetByID(ctx context.Context, id int64) (*Race, error) {
	row := s.db.QueryRow(ctx, "SELECT "+raceColumns+" FROM races WHERE id = ?", id)
	race, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(fmt.Errorf("race %d", id), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get race %d: %w", id, err)
	}
	return race, nil
}

// GetBySeasonRound fetches the race for a season round.
func (s *Store) GetBySeasonRound(ctx context.Context, season, round int) (*Race, error) {
	row := s.db.QueryRow(ctx, "SELECT "+raceColumns+" FROM races WHERE season = ? AND round = ?", season, round)
	race, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(fmt.Errorf("race %d round %d", season, round), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get race %d round %d: %w", season, round, err)
	}
	return race, nil
}

// ListSeason returns a season's races ordered by round.
func (s *Store) ListSeason(ctx context.Context, season int) ([]*Race, error) {
	rows, err := s.db.Query(ctx, "SELECT "+raceColumns+" FROM races WHERE season = ? ORDER BY round", season)
	if err != nil {
		return nil, fmt.Errorf("list season %d: %w", season, err)
	}
	defer rows.Close()
	return collectRaces(rows)
}

// Upcoming returns races starting within the window [from, from+lookahead),
// ordered by start time.
func (s *Store) Upcoming(ctx context.Context, from time.Time, lookahead time.Duration) ([]*Race, error) {
	until := from.Add(lookahead)
	rows, err := s.db.Query(ctx,
		"SELECT "+raceColumns+" FROM races WHERE race_start >= ? AND race_start < ? ORDER BY race_start",
		store.FormatTime(from), store.FormatTime(until))
	if err != nil {
		return nil, fmt.Errorf("list upcoming races: %w", err)
	}
	defer rows.Close()
	return collectRaces(rows)
}

// NextAfter returns the first race starting at or after t, or ErrNotFound.
func (s *Store) NextAfter(ctx context.Context, t time.Time) (*Race, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+raceColumns+" FROM races WHERE race_start >= ? ORDER BY race_start LIMIT 1",
		store.FormatTime(t))
	race, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(errors.New("no race after cutoff"), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("next race: %w", err)
	}
	return race, nil
}

// LatestBefore returns the last race that started strictly before t, or
// ErrNotFound when the calendar has none.
func (s *Store) LatestBefore(ctx context.Context, t time.Time) (*Race, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+raceColumns+" FROM races WHERE race_start < ? ORDER BY race_start DESC LIMIT 1",
		store.FormatTime(t))
	race, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(errors.New("no race before cutoff"), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest race: %w", err)
	}
	return race, nil
}

// CountRoundsBetween counts races strictly after (fromSeason, fromRound) up
// to and including (toSeason, toRound). It is the distance metric used for
// gag cooldowns, so it works across season boundaries.
func (s *Store) CountRoundsBetween(ctx context.Context, fromSeason, fromRound, toSeason, toRound int) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(1) FROM races
		WHERE (season > ? OR (season = ? AND round > ?))
		  AND (season < ? OR (season = ? AND round <= ?))`,
		fromSeason, fromSeason, fromRound, toSeason, toSeason, toRound,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rounds between: %w", err)
	}
	return count, nil
}

func collectRaces(rows *sql.Rows) ([]*Race, error) {
	var races []*Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan race: %w", err)
		}
		races = append(races, race)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate races: %w", err)
	}
	return races, nil
}

func scanRace(scanner interface{ Scan(dest ...any) error }) (*Race, error) {
	var (
		id            int64
		season        int
		round         int
		name          string
		circuit       sql.NullString
		country       sql.NullString
		raceStart     string
		fp1Raw        sql.NullString
		fp2Raw        sql.NullString
		fp3Raw        sql.NullString
		sprintQualRaw sql.NullString
		sprintRaw     sql.NullString
		qualRaw       sql.NullString
		hasSprint     sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(&id, &season, &round, &name, &circuit, &country, &raceStart,
		&fp1Raw, &fp2Raw, &fp3Raw, &sprintQualRaw, &sprintRaw, &qualRaw,
		&hasSprint, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	race := &Race{
		ID:      id,
		Season:  season,
		Round:   round,
		Name:    name,
		Circuit: circuit.String,
		Country: country.String,
	}
	if hasSprint.Valid {
		race.HasSprint = hasSprint.Int64 != 0
	}
	if start, err := store.ParseTime(raceStart); err == nil {
		race.RaceStart = start
	}
	race.FP1Start = parseOptionalTime(fp1Raw)
	race.FP2Start = parseOptionalTime(fp2Raw)
	race.FP3Start = parseOptionalTime(fp3Raw)
	race.SprintQualifyingStart = parseOptionalTime(sprintQualRaw)
	race.SprintStart = parseOptionalTime(sprintRaw)
	race.QualifyingStart = parseOptionalTime(qualRaw)
	if created, err := store.ParseTime(createdRaw.String); err == nil {
		race.CreatedAt = created
	}
	if updated, err := store.ParseTime(updatedRaw.String); err == nil {
		race.UpdatedAt = updated
	}
	return race, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := store.ParseTime(raw.String)
	if err != nil {
		return nil
	}
	return &t
}
