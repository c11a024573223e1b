package gags

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paddock/internal/services"
	"paddock/internal/store"
)

// Store persists running gags and their per-episode usage records.
type Store struct {
	db *store.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

const gagColumns = "id, name, category, character, secondary_character, description, setup, punchline, variations, origin, tags, humor_rating, status, times_used, max_uses, cooldown_races, last_used_season, last_used_round, last_used_at, audience_familiarity, created_at, updated_at"

// Create inserts a new gag and returns its ID.
func (s *Store) Create(ctx context.Context, gag *Gag) (int64, error) {
	if gag == nil {
		return 0, services.Categorize(errors.New("gag is nil"), services.ErrValidation)
	}
	if gag.Status == "" {
		gag.Status = StatusActive
	}
	if err := gag.Validate(); err != nil {
		return 0, services.Categorize(err, services.ErrValidation)
	}

	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		INSERT INTO running_gags (name, category, character, secondary_character, description, setup, punchline, variations, origin, tags, humor_rating, status, times_used, max_uses, cooldown_races, audience_familiarity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gag.Name, string(gag.Category),
		store.NullableString(gag.Character), store.NullableString(gag.SecondaryCharacter),
		gag.Description, gag.Setup, gag.Punchline, gag.Variations, gag.Origin, encodeTags(gag.Tags),
		gag.HumorRating, string(gag.Status), gag.TimesUsed, gag.MaxUses, gag.CooldownRaces,
		gag.AudienceFamiliarity, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("create gag %q: %w", gag.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("gag insert id: %w", err)
	}
	gag.ID = id
	return id, nil
}

// GetByID fetches a single gag.
func (s *Store) GetByID(ctx context.Context, id int64) (*Gag, error) {
	row := s.db.QueryRow(ctx, "SELECT "+gagColumns+" FROM running_gags WHERE id = ?", id)
	gag, err := scanGag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(fmt.Errorf("gag %d", id), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get gag %d: %w", id, err)
	}
	return gag, nil
}

// GetByName fetches a gag by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*Gag, error) {
	row := s.db.QueryRow(ctx, "SELECT "+gagColumns+" FROM running_gags WHERE name = ?", name)
	gag, err := scanGag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(fmt.Errorf("gag %q", name), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get gag %q: %w", name, err)
	}
	return gag, nil
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status    Status
	Category  Category
	Character string
}

// List returns gags matching the filter, highest humor rating first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Gag, error) {
	query := "SELECT " + gagColumns + " FROM running_gags WHERE 1=1"
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
	}
	if filter.Character != "" {
		query += " AND character = ?"
		args = append(args, filter.Character)
	}
	query += " ORDER BY humor_rating DESC, times_used ASC, id ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gags: %w", err)
	}
	defer rows.Close()
	return collectGags(rows)
}

// RateUsage scores one recorded deployment after audience feedback, then
// rolls the gag's humor rating forward to the average of its rated usages.
func (s *Store) RateUsage(ctx context.Context, gagID, episodeID int64, sceneIndex int, rating float64) error {
	if rating < 0 || rating > 10 {
		return services.Categorize(fmt.Errorf("effectiveness must be within [0, 10], got %g", rating), services.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin rating tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := store.FormatTime(time.Now())
	res, err := tx.ExecContext(ctx,
		"UPDATE gag_usage SET effectiveness = ? WHERE gag_id = ? AND episode_id = ? AND scene_index = ?",
		rating, gagID, episodeID, sceneIndex)
	if err != nil {
		return fmt.Errorf("rate usage for gag %d: %w", gagID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rating rows for gag %d: %w", gagID, err)
	}
	if affected == 0 {
		return services.Categorize(
			fmt.Errorf("no usage of gag %d in episode %d scene %d", gagID, episodeID, sceneIndex),
			services.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE running_gags SET
			humor_rating = (SELECT AVG(effectiveness) FROM gag_usage WHERE gag_id = ? AND effectiveness IS NOT NULL),
			updated_at = ?
		WHERE id = ?`,
		gagID, now, gagID)
	if err != nil {
		return fmt.Errorf("refresh rating for gag %d: %w", gagID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating for gag %d: %w", gagID, err)
	}
	return nil
}

// Transition moves a gag between statuses, enforcing the lifecycle table
// with an optimistic compare-and-set.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status) error {
	if !CanTransition(from, to) {
		return services.Categorize(fmt.Errorf("gag transition %s -> %s not allowed", from, to), services.ErrValidation)
	}
	res, err := s.db.Exec(ctx,
		"UPDATE running_gags SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), store.FormatTime(time.Now()), id, string(from))
	if err != nil {
		return fmt.Errorf("transition gag %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition gag %d rows: %w", id, err)
	}
	if affected == 0 {
		return services.Categorize(fmt.Errorf("gag %d is no longer %s", id, from), services.ErrValidation)
	}
	return nil
}

// Retire takes a gag permanently out of rotation regardless of its current
// lifecycle state.
func (s *Store) Retire(ctx context.Context, id int64) error {
	res, err := s.db.Exec(ctx,
		"UPDATE running_gags SET status = ?, updated_at = ? WHERE id = ? AND status != ?",
		string(StatusRetired), store.FormatTime(time.Now()), id, string(StatusRetired))
	if err != nil {
		return fmt.Errorf("retire gag %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Revive puts a retired gag back into the active pool.
func (s *Store) Revive(ctx context.Context, id int64) error {
	return s.Transition(ctx, id, StatusRetired, StatusActive)
}

// Update rewrites a gag's descriptive fields and knobs. Lifecycle state
// and usage counters are untouched; those move through Transition,
// RecordUsage, and friends.
func (s *Store) Update(ctx context.Context, gag *Gag) error {
	if gag == nil || gag.ID == 0 {
		return services.Categorize(errors.New("gag id required"), services.ErrValidation)
	}
	if err := gag.Validate(); err != nil {
		return services.Categorize(err, services.ErrValidation)
	}
	res, err := s.db.Exec(ctx, `
		UPDATE running_gags SET
			name = ?,
			category = ?,
			character = ?,
			secondary_character = ?,
			description = ?,
			setup = ?,
			punchline = ?,
			variations = ?,
			origin = ?,
			tags = ?,
			humor_rating = ?,
			max_uses = ?,
			cooldown_races = ?,
			updated_at = ?
		WHERE id = ?`,
		gag.Name, string(gag.Category),
		store.NullableString(gag.Character), store.NullableString(gag.SecondaryCharacter),
		gag.Description, gag.Setup, gag.Punchline, gag.Variations, gag.Origin, encodeTags(gag.Tags),
		gag.HumorRating, gag.MaxUses, gag.CooldownRaces,
		store.FormatTime(time.Now()), gag.ID,
	)
	if err != nil {
		return fmt.Errorf("update gag %d: %w", gag.ID, err)
	}
	return requireRow(res, gag.ID)
}

// Delete removes a gag along with its usage history.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM gag_usage WHERE gag_id = ?", id); err != nil {
		return fmt.Errorf("delete usage for gag %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM running_gags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete gag %d: %w", id, err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete for gag %d: %w", id, err)
	}
	return nil
}

// RecordUsage marks a gag as used in one scene of an episode. The usage row
// is the idempotency guard: recording the same (gag, episode, scene) triple
// twice mutates counters only once, so pipeline retries stay safe. The
// counter update refuses gags that are retired or already out of uses; the
// deferred rollback then discards the usage row too.
func (s *Store) RecordUsage(ctx context.Context, u Usage) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := store.FormatTime(time.Now())
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO gag_usage (gag_id, episode_id, scene_index, usage_context, dialogue_excerpt, used_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.GagID, u.EpisodeID, u.SceneIndex, u.Context, u.Excerpt, now)
	if err != nil {
		return fmt.Errorf("insert usage for gag %d: %w", u.GagID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("usage rows for gag %d: %w", u.GagID, err)
	}
	if inserted == 0 {
		return tx.Commit()
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE running_gags SET
			times_used = times_used + 1,
			audience_familiarity = MIN(audience_familiarity + 1, ?),
			last_used_season = ?,
			last_used_round = ?,
			last_used_at = ?,
			status = CASE
				WHEN max_uses > 0 AND times_used + 1 >= max_uses THEN ?
				WHEN cooldown_races > 0 THEN ?
				ELSE ?
			END,
			updated_at = ?
		WHERE id = ? AND status != ? AND (max_uses = 0 OR times_used < max_uses)`,
		MaxFamiliarity, u.Season, u.Round, now,
		string(StatusExhausted), string(StatusCoolingDown), string(StatusActive),
		now, u.GagID, string(StatusRetired),
	)
	if err != nil {
		return fmt.Errorf("bump usage counters for gag %d: %w", u.GagID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("usage counter rows for gag %d: %w", u.GagID, err)
	}
	if affected == 0 {
		return services.Categorize(fmt.Errorf("gag %d is retired, out of uses, or missing", u.GagID), services.ErrValidation)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit usage for gag %d: %w", u.GagID, err)
	}
	return nil
}

// RollbackUsage reverses RecordUsage when an episode fails terminally. The
// last-used round is left in place, which keeps the cooldown conservative
// rather than reopening a slot the audience may already have seen drafted.
func (s *Store) RollbackUsage(ctx context.Context, gagID, episodeID int64) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin rollback tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM gag_usage WHERE gag_id = ? AND episode_id = ?", gagID, episodeID)
	if err != nil {
		return fmt.Errorf("delete usage for gag %d: %w", gagID, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rollback rows for gag %d: %w", gagID, err)
	}
	if deleted == 0 {
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE running_gags SET
			times_used = MAX(times_used - ?, 0),
			audience_familiarity = MAX(audience_familiarity - ?, 0),
			status = CASE
				WHEN status = ? THEN ?
				WHEN status = ? AND (max_uses = 0 OR times_used - ? < max_uses) THEN ?
				ELSE status
			END,
			updated_at = ?
		WHERE id = ?`,
		deleted, deleted,
		string(StatusCoolingDown), string(StatusActive),
		string(StatusExhausted), deleted, string(StatusActive),
		store.FormatTime(time.Now()), gagID,
	)
	if err != nil {
		return fmt.Errorf("restore counters for gag %d: %w", gagID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback for gag %d: %w", gagID, err)
	}
	return nil
}

// UsedInEpisode returns the gag IDs recorded against an episode, once per
// gag even when it appeared in several scenes.
func (s *Store) UsedInEpisode(ctx context.Context, episodeID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		"SELECT DISTINCT gag_id FROM gag_usage WHERE episode_id = ? ORDER BY gag_id", episodeID)
	if err != nil {
		return nil, fmt.Errorf("list usage for episode %d: %w", episodeID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return ids, nil
}

func requireRow(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for gag %d: %w", id, err)
	}
	if affected == 0 {
		return services.Categorize(fmt.Errorf("gag %d", id), services.ErrNotFound)
	}
	return nil
}

func collectGags(rows *sql.Rows) ([]*Gag, error) {
	var gags []*Gag
	for rows.Next() {
		gag, err := scanGag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gag: %w", err)
		}
		gags = append(gags, gag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gags: %w", err)
	}
	return gags, nil
}

func scanGag(scanner interface{ Scan(dest ...any) error }) (*Gag, error) {
	var (
		id          int64
		name        string
		category    string
		character   sql.NullString
		secondary   sql.NullString
		description sql.NullString
		setup       sql.NullString
		punchline   sql.NullString
		variations  sql.NullString
		origin      sql.NullString
		tagsRaw     sql.NullString
		humor       float64
		status      string
		timesUsed   int
		maxUses     int
		cooldown    int
		lastSeason  sql.NullInt64
		lastRound   sql.NullInt64
		lastUsedRaw sql.NullString
		familiarity int
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &name, &category, &character, &secondary, &description,
		&setup, &punchline, &variations, &origin, &tagsRaw, &humor, &status,
		&timesUsed, &maxUses, &cooldown, &lastSeason, &lastRound, &lastUsedRaw, &familiarity,
		&createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	gag := &Gag{
		ID:                  id,
		Name:                name,
		Category:            Category(category),
		Character:           character.String,
		SecondaryCharacter:  secondary.String,
		Description:         description.String,
		Setup:               setup.String,
		Punchline:           punchline.String,
		Variations:          variations.String,
		Origin:              origin.String,
		Tags:                decodeTags(tagsRaw.String),
		HumorRating:         humor,
		Status:              Status(status),
		TimesUsed:           timesUsed,
		MaxUses:             maxUses,
		CooldownRaces:       cooldown,
		AudienceFamiliarity: familiarity,
	}
	if lastSeason.Valid {
		v := int(lastSeason.Int64)
		gag.LastUsedSeason = &v
	}
	if lastRound.Valid {
		v := int(lastRound.Int64)
		gag.LastUsedRound = &v
	}
	if lastUsedRaw.Valid && lastUsedRaw.String != "" {
		if t, err := store.ParseTime(lastUsedRaw.String); err == nil {
			gag.LastUsedAt = &t
		}
	}
	if created, err := store.ParseTime(createdRaw.String); err == nil {
		gag.CreatedAt = created
	}
	if updated, err := store.ParseTime(updatedRaw.String); err == nil {
		gag.UpdatedAt = updated
	}
	return gag, nil
}

// Tags live in a JSON array column so the list survives round trips without
// a join table. An unreadable value degrades to no tags.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeTags(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}
