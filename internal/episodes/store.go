package episodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"paddock/internal/services"
	"paddock/internal/store"
)

// Store persists episodes and their scenes.
type Store struct {
	db *store.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

const episodeColumns = "id, job_id, race_id, trigger_kind, title, status, current_stage, script_path, video_path, publish_url, scene_count, error_message, created_at, updated_at, published_at"

const sceneColumns = "id, episode_id, scene_index, prompt, dialogue, image_path, clip_path, status, retry_count, error_message, created_at, updated_at"

// Create inserts a new pending episode.
func (s *Store) Create(ctx context.Context, episode *Episode) (int64, error) {
	if episode == nil {
		return 0, services.Categorize(errors.New("episode is nil"), services.ErrValidation)
	}
	if episode.TriggerKind == "" {
		return 0, services.Categorize(errors.New("episode trigger kind is required"), services.ErrValidation)
	}
	if episode.Status == "" {
		episode.Status = StatusPending
	}

	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		INSERT INTO episodes (job_id, race_id, trigger_kind, title, status, current_stage, scene_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		store.NullableInt64(episode.JobID), store.NullableInt64(episode.RaceID),
		episode.TriggerKind, episode.Title, string(episode.Status),
		store.NullableString(string(episode.CurrentStage)), episode.SceneCount,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("create episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("episode insert id: %w", err)
	}
	episode.ID = id
	return id, nil
}

// GetByID fetches one episode.
func (s *Store) GetByID(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRow(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(fmt.Errorf("episode %d", id), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %d: %w", id, err)
	}
	return episode, nil
}

// GetByJobID fetches the episode attached to a scheduled job, if any.
func (s *Store) GetByJobID(ctx context.Context, jobID int64) (*Episode, error) {
	row := s.db.QueryRow(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE job_id = ? ORDER BY id DESC LIMIT 1", jobID)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(fmt.Errorf("episode for job %d", jobID), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode for job %d: %w", jobID, err)
	}
	return episode, nil
}

// List returns episodes, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]*Episode, error) {
	query := "SELECT " + episodeColumns + " FROM episodes"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var result []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		result = append(result, episode)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	return result, nil
}

// Transition moves an episode between statuses with an optimistic
// compare-and-set and records the current stage checkpoint.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status, stage Stage) error {
	if !CanTransition(from, to) {
		return services.Categorize(fmt.Errorf("episode transition %s -> %s not allowed", from, to), services.ErrValidation)
	}
	res, err := s.db.Exec(ctx,
		"UPDATE episodes SET status = ?, current_stage = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), store.NullableString(string(stage)), store.FormatTime(time.Now()), id, string(from))
	if err != nil {
		return fmt.Errorf("transition episode %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition episode %d rows: %w", id, err)
	}
	if affected == 0 {
		return services.Categorize(fmt.Errorf("episode %d is no longer %s", id, from), services.ErrValidation)
	}
	return nil
}

// SetScript records the produced script and the scene count it defined.
func (s *Store) SetScript(ctx context.Context, id int64, scriptPath, title string, sceneCount int) error {
	_, err := s.db.Exec(ctx,
		"UPDATE episodes SET script_path = ?, title = ?, scene_count = ?, updated_at = ? WHERE id = ?",
		scriptPath, title, sceneCount, store.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set script for episode %d: %w", id, err)
	}
	return nil
}

// SetVideo records the stitched output file.
func (s *Store) SetVideo(ctx context.Context, id int64, videoPath string) error {
	_, err := s.db.Exec(ctx,
		"UPDATE episodes SET video_path = ?, updated_at = ? WHERE id = ?",
		videoPath, store.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set video for episode %d: %w", id, err)
	}
	return nil
}

// MarkPublished records the publish URL and timestamp.
func (s *Store) MarkPublished(ctx context.Context, id int64, publishURL string) error {
	now := store.FormatTime(time.Now())
	_, err := s.db.Exec(ctx,
		"UPDATE episodes SET status = ?, publish_url = ?, published_at = ?, error_message = NULL, updated_at = ? WHERE id = ?",
		string(StatusPublished), publishURL, now, now, id)
	if err != nil {
		return fmt.Errorf("mark episode %d published: %w", id, err)
	}
	return nil
}

// MarkFailed records the failure message and parks the episode.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	_, err := s.db.Exec(ctx,
		"UPDATE episodes SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
		string(StatusFailed), message, store.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark episode %d failed: %w", id, err)
	}
	return nil
}

// ReplaceScenes deletes any existing scenes and inserts the provided set.
// Used when a script is (re)generated.
func (s *Store) ReplaceScenes(ctx context.Context, episodeID int64, scenes []*Scene) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin scenes tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM episode_scenes WHERE episode_id = ?", episodeID); err != nil {
		return fmt.Errorf("clear scenes for episode %d: %w", episodeID, err)
	}

	now := store.FormatTime(time.Now())
	for _, scene := range scenes {
		status := scene.Status
		if status == "" {
			status = SceneStatusPending
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO episode_scenes (episode_id, scene_index, prompt, dialogue, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			episodeID, scene.Index, scene.Prompt, scene.Dialogue, string(status), now, now)
		if err != nil {
			return fmt.Errorf("insert scene %d for episode %d: %w", scene.Index, episodeID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("scene insert id: %w", err)
		}
		scene.ID = id
		scene.EpisodeID = episodeID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scenes for episode %d: %w", episodeID, err)
	}
	return nil
}

// Scenes returns an episode's scenes in running order.
func (s *Store) Scenes(ctx context.Context, episodeID int64) ([]*Scene, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+sceneColumns+" FROM episode_scenes WHERE episode_id = ? ORDER BY scene_index", episodeID)
	if err != nil {
		return nil, fmt.Errorf("list scenes for episode %d: %w", episodeID, err)
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenes: %w", err)
	}
	return scenes, nil
}

// SetSceneImage checkpoints a rendered still for the scene.
func (s *Store) SetSceneImage(ctx context.Context, sceneID int64, imagePath string) error {
	_, err := s.db.Exec(ctx,
		"UPDATE episode_scenes SET image_path = ?, status = ?, error_message = NULL, updated_at = ? WHERE id = ?",
		imagePath, string(SceneStatusImageDone), store.FormatTime(time.Now()), sceneID)
	if err != nil {
		return fmt.Errorf("set image for scene %d: %w", sceneID, err)
	}
	return nil
}

// SetSceneClip checkpoints the finished clip and completes the scene.
func (s *Store) SetSceneClip(ctx context.Context, sceneID int64, clipPath string) error {
	_, err := s.db.Exec(ctx,
		"UPDATE episode_scenes SET clip_path = ?, status = ?, error_message = NULL, updated_at = ? WHERE id = ?",
		clipPath, string(SceneStatusComplete), store.FormatTime(time.Now()), sceneID)
	if err != nil {
		return fmt.Errorf("set clip for scene %d: %w", sceneID, err)
	}
	return nil
}

// MarkSceneFailed records a render failure and bumps the retry counter.
func (s *Store) MarkSceneFailed(ctx context.Context, sceneID int64, message string) error {
	_, err := s.db.Exec(ctx,
		"UPDATE episode_scenes SET status = ?, error_message = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?",
		string(SceneStatusFailed), message, store.FormatTime(time.Now()), sceneID)
	if err != nil {
		return fmt.Errorf("mark scene %d failed: %w", sceneID, err)
	}
	return nil
}

// RequeueScenes puts the named scenes back to pending with fresh retry
// budgets and cleared artifacts so they render from scratch. An empty
// index list requeues every failed scene. Returns how many were requeued.
func (s *Store) RequeueScenes(ctx context.Context, episodeID int64, indexes []int) (int, error) {
	now := store.FormatTime(time.Now())
	query := "UPDATE episode_scenes SET status = ?, error_message = NULL, retry_count = 0, image_path = NULL, clip_path = NULL, updated_at = ? WHERE episode_id = ?"
	args := []any{string(SceneStatusPending), now, episodeID}
	if len(indexes) == 0 {
		query += " AND status = ?"
		args = append(args, string(SceneStatusFailed))
	} else {
		placeholders := make([]string, len(indexes))
		for i, index := range indexes {
			placeholders[i] = "?"
			args = append(args, index)
		}
		query += " AND scene_index IN (" + strings.Join(placeholders, ", ") + ")"
	}

	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue scenes for episode %d: %w", episodeID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue rows for episode %d: %w", episodeID, err)
	}
	return int(affected), nil
}

// ResetFailedScenes flips failed scenes whose retry budget is not spent
// back to pending and returns how many were reset.
func (s *Store) ResetFailedScenes(ctx context.Context, episodeID int64, maxRetries int) (int, error) {
	res, err := s.db.Exec(ctx,
		"UPDATE episode_scenes SET status = ?, error_message = NULL, updated_at = ? WHERE episode_id = ? AND status = ? AND retry_count <= ?",
		string(SceneStatusPending), store.FormatTime(time.Now()), episodeID, string(SceneStatusFailed), maxRetries)
	if err != nil {
		return 0, fmt.Errorf("reset failed scenes for episode %d: %w", episodeID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rows for episode %d: %w", episodeID, err)
	}
	return int(affected), nil
}

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id           int64
		jobID        sql.NullInt64
		raceID       sql.NullInt64
		triggerKind  string
		title        sql.NullString
		status       string
		currentStage sql.NullString
		scriptPath   sql.NullString
		videoPath    sql.NullString
		publishURL   sql.NullString
		sceneCount   int
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		publishedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &jobID, &raceID, &triggerKind, &title, &status, &currentStage,
		&scriptPath, &videoPath, &publishURL, &sceneCount, &errorMessage,
		&createdRaw, &updatedRaw, &publishedRaw); err != nil {
		return nil, err
	}

	episode := &Episode{
		ID:           id,
		TriggerKind:  triggerKind,
		Title:        title.String,
		Status:       Status(status),
		CurrentStage: Stage(currentStage.String),
		ScriptPath:   scriptPath.String,
		VideoPath:    videoPath.String,
		PublishURL:   publishURL.String,
		SceneCount:   sceneCount,
		ErrorMessage: errorMessage.String,
	}
	if jobID.Valid {
		v := jobID.Int64
		episode.JobID = &v
	}
	if raceID.Valid {
		v := raceID.Int64
		episode.RaceID = &v
	}
	if created, err := store.ParseTime(createdRaw.String); err == nil {
		episode.CreatedAt = created
	}
	if updated, err := store.ParseTime(updatedRaw.String); err == nil {
		episode.UpdatedAt = updated
	}
	if publishedRaw.Valid {
		if published, err := store.ParseTime(publishedRaw.String); err == nil {
			episode.PublishedAt = &published
		}
	}
	return episode, nil
}

func scanScene(scanner interface{ Scan(dest ...any) error }) (*Scene, error) {
	var (
		id           int64
		episodeID    int64
		index        int
		prompt       sql.NullString
		dialogue     sql.NullString
		imagePath    sql.NullString
		clipPath     sql.NullString
		status       string
		retryCount   int
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &episodeID, &index, &prompt, &dialogue, &imagePath, &clipPath,
		&status, &retryCount, &errorMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	scene := &Scene{
		ID:           id,
		EpisodeID:    episodeID,
		Index:        index,
		Prompt:       prompt.String,
		Dialogue:     dialogue.String,
		ImagePath:    imagePath.String,
		ClipPath:     clipPath.String,
		Status:       SceneStatus(status),
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
	}
	if created, err := store.ParseTime(createdRaw.String); err == nil {
		scene.CreatedAt = created
	}
	if updated, err := store.ParseTime(updatedRaw.String); err == nil {
		scene.UpdatedAt = updated
	}
	return scene, nil
}
