package episodes

import "time"

// Status tracks an episode through the production pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScripting  Status = "scripting"
	StatusRendering  Status = "rendering"
	StatusStitching  Status = "stitching"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// Stage names the pipeline phases recorded as checkpoints so a crashed run
// can resume where it stopped.
type Stage string

const (
	StageScript  Stage = "script"
	StageScenes  Stage = "scenes"
	StageStitch  Stage = "stitch"
	StagePublish Stage = "publish"
	StageCleanup Stage = "cleanup"
)

var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusScripting, StatusFailed},
	StatusScripting:  {StatusRendering, StatusFailed},
	StatusRendering:  {StatusStitching, StatusFailed},
	StatusStitching:  {StatusPublishing, StatusPublished, StatusFailed},
	StatusPublishing: {StatusPublished, StatusFailed},
	StatusFailed:     {StatusScripting, StatusRendering, StatusStitching, StatusPublishing},
}

// CanTransition reports whether an episode may move between two statuses.
func CanTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the pipeline for this episode.
func (s Status) IsTerminal() bool {
	return s == StatusPublished
}

// Episode is one generated video tied to a scheduled job.
type Episode struct {
	ID           int64
	JobID        *int64
	RaceID       *int64
	TriggerKind  string
	Title        string
	Status       Status
	CurrentStage Stage
	ScriptPath   string
	VideoPath    string
	PublishURL   string
	SceneCount   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PublishedAt  *time.Time
}

// SceneStatus tracks one scene's render progress.
type SceneStatus string

const (
	SceneStatusPending   SceneStatus = "pending"
	SceneStatusImageDone SceneStatus = "image_done"
	SceneStatusComplete  SceneStatus = "complete"
	SceneStatusFailed    SceneStatus = "failed"
)

// Scene is one shot of an episode: a prompt, its rendered still, and the
// animated clip derived from it.
type Scene struct {
	ID           int64
	EpisodeID    int64
	Index        int
	Prompt       string
	Dialogue     string
	ImagePath    string
	ClipPath     string
	Status       SceneStatus
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
