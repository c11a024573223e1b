package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paddock/internal/services"
	"paddock/internal/store"
)

// Store persists scheduled jobs.
type Store struct {
	db *store.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

const jobColumns = "id, race_id, trigger_kind, scheduled_for, first_scheduled_for, status, scrape_context, retry_count, max_retries, error_message, episode_id, created_at, updated_at, started_at, finished_at, last_heartbeat"

// Create inserts a job. The partial unique indexes on active jobs make this
// idempotent for calendar sync: inserting a duplicate active (race, trigger)
// pair is silently ignored and Create reports inserted=false.
func (s *Store) Create(ctx context.Context, job *Job) (inserted bool, err error) {
	if job == nil {
		return false, services.Categorize(errors.New("job is nil"), services.ErrValidation)
	}
	if !ValidTriggerKind(job.TriggerKind) {
		return false, services.Categorize(fmt.Errorf("unknown trigger kind %q", job.TriggerKind), services.ErrValidation)
	}
	if job.ScheduledFor.IsZero() {
		return false, services.Categorize(errors.New("job schedule time is required"), services.ErrValidation)
	}
	if job.Status == "" {
		job.Status = JobScheduled
	}
	if job.ScrapeContext == "" {
		job.ScrapeContext = DefaultScrapeContext(job.TriggerKind)
	}

	if job.FirstScheduledFor.IsZero() {
		job.FirstScheduledFor = job.ScheduledFor
	}

	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		INSERT OR IGNORE INTO scheduled_jobs (race_id, trigger_kind, scheduled_for, first_scheduled_for, status, scrape_context, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		store.NullableInt64(job.RaceID), string(job.TriggerKind),
		store.FormatTime(job.ScheduledFor), store.FormatTime(job.FirstScheduledFor),
		string(job.Status), job.ScrapeContext,
		job.RetryCount, job.MaxRetries, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", job.Label(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("job insert rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("job insert id: %w", err)
	}
	job.ID = id
	return true, nil
}

// GetByID fetches one job.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRow(ctx, "SELECT "+jobColumns+" FROM scheduled_jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Categorize(fmt.Errorf("job %d", id), services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status JobStatus
	Kind   TriggerKind
	RaceID *int64
	Limit  int
}

// List returns jobs newest first by schedule time.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM scheduled_jobs WHERE 1=1"
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += " AND trigger_kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.RaceID != nil {
		query += " AND race_id = ?"
		args = append(args, *filter.RaceID)
	}
	query += " ORDER BY scheduled_for DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Upcoming returns scheduled jobs due at or after now.
func (s *Store) Upcoming(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM scheduled_jobs WHERE status = ? AND scheduled_for >= ? ORDER BY scheduled_for, id"
	args := []any{string(JobScheduled), store.FormatTime(now)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list upcoming jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// DueScheduled returns scheduled jobs whose time has come, oldest first.
func (s *Store) DueScheduled(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM scheduled_jobs WHERE status = ? AND scheduled_for <= ? ORDER BY scheduled_for, id"
	args := []any{string(JobScheduled), store.FormatTime(now)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Claim moves a scheduled job to running. The compare-and-set means two
// workers racing for the same job results in exactly one winner.
func (s *Store) Claim(ctx context.Context, id int64) (bool, error) {
	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobRunning), now, now, now, id, string(JobScheduled))
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %d rows: %w", id, err)
	}
	return affected == 1, nil
}

// Heartbeat refreshes a running job's liveness marker.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	now := store.FormatTime(time.Now())
	_, err := s.db.Exec(ctx,
		"UPDATE scheduled_jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?",
		now, now, id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("heartbeat job %d: %w", id, err)
	}
	return nil
}

// MarkCompleted finishes a running job and links its episode.
func (s *Store) MarkCompleted(ctx context.Context, id int64, episodeID int64) error {
	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, episode_id = ?, error_message = NULL, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobCompleted), episodeID, now, now, id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return requireClaimed(res, id)
}

// MarkFailed terminates a running job with an error message.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobFailed), message, now, now, id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	return requireClaimed(res, id)
}

// Reschedule puts a running job back on the calendar for a retry, bumping
// the retry counter and stamping the failure that caused it.
func (s *Store) Reschedule(ctx context.Context, id int64, at time.Time, message string) error {
	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, scheduled_for = ?, retry_count = retry_count + 1, error_message = ?, started_at = NULL, last_heartbeat = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobScheduled), store.FormatTime(at), message, now, id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("reschedule job %d: %w", id, err)
	}
	return requireClaimed(res, id)
}

// Release returns a running job to scheduled without touching the retry
// counter. Used for crash recovery, where the job never actually ran.
func (s *Store) Release(ctx context.Context, id int64) error {
	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, started_at = NULL, last_heartbeat = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobScheduled), now, id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("release job %d: %w", id, err)
	}
	return requireClaimed(res, id)
}

// Cancel withdraws a scheduled job. Running or finished jobs cannot be
// cancelled.
func (s *Store) Cancel(ctx context.Context, id int64) error {
	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx,
		"UPDATE scheduled_jobs SET status = ?, finished_at = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(JobCancelled), now, now, id, string(JobScheduled))
	if err != nil {
		return fmt.Errorf("cancel job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel job %d rows: %w", id, err)
	}
	if affected == 0 {
		return services.Categorize(fmt.Errorf("job %d is not scheduled", id), services.ErrValidation)
	}
	return nil
}

// ForceDue pulls a scheduled or failed job forward to run at the given
// time. A forced failed job gets a fresh retry budget and a clean run
// record, and its anchor moves so retry backoff counts from the forced
// slot rather than the long-gone original one.
func (s *Store) ForceDue(ctx context.Context, id int64, at time.Time) error {
	now := store.FormatTime(time.Now())
	res, err := s.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, scheduled_for = ?, first_scheduled_for = ?, retry_count = 0, error_message = NULL, started_at = NULL, finished_at = NULL, last_heartbeat = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(JobScheduled), store.FormatTime(at), store.FormatTime(at), now,
		id, string(JobScheduled), string(JobFailed))
	if err != nil {
		return fmt.Errorf("force job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("force job %d rows: %w", id, err)
	}
	if affected == 0 {
		return services.Categorize(fmt.Errorf("job %d is not scheduled or failed", id), services.ErrValidation)
	}
	return nil
}

// Stats returns job counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(1) FROM scheduled_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// StaleRunning returns running jobs whose heartbeat is older than cutoff.
// These are casualties of a crashed daemon and get rescheduled on startup.
func (s *Store) StaleRunning(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM scheduled_jobs
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)
		ORDER BY id`,
		string(JobRunning), store.FormatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func requireClaimed(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("job %d rows: %w", id, err)
	}
	if affected == 0 {
		return services.Categorize(fmt.Errorf("job %d is not running", id), services.ErrValidation)
	}
	return nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            int64
		raceID        sql.NullInt64
		triggerKind   string
		scheduledRaw  string
		firstSchedRaw string
		status        string
		scrape        sql.NullString
		retryCount    int
		maxRetries    int
		errorMessage  sql.NullString
		episodeID     sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
		heartbeatRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &raceID, &triggerKind, &scheduledRaw, &firstSchedRaw, &status, &scrape,
		&retryCount, &maxRetries, &errorMessage, &episodeID,
		&createdRaw, &updatedRaw, &startedRaw, &finishedRaw, &heartbeatRaw); err != nil {
		return nil, err
	}

	job := &Job{
		ID:            id,
		TriggerKind:   TriggerKind(triggerKind),
		Status:        JobStatus(status),
		ScrapeContext: scrape.String,
		RetryCount:    retryCount,
		MaxRetries:    maxRetries,
		ErrorMessage:  errorMessage.String,
	}
	if raceID.Valid {
		v := raceID.Int64
		job.RaceID = &v
	}
	if episodeID.Valid {
		v := episodeID.Int64
		job.EpisodeID = &v
	}
	if scheduled, err := store.ParseTime(scheduledRaw); err == nil {
		job.ScheduledFor = scheduled
	}
	if first, err := store.ParseTime(firstSchedRaw); err == nil {
		job.FirstScheduledFor = first
	}
	if created, err := store.ParseTime(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := store.ParseTime(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = optionalTime(startedRaw)
	job.FinishedAt = optionalTime(finishedRaw)
	job.LastHeartbeat = optionalTime(heartbeatRaw)
	return job, nil
}

func optionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := store.ParseTime(raw.String)
	if err != nil {
		return nil
	}
	return &t
}
