package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a scheduled production job in a transport-friendly format.
type Job struct {
	ID            int64  `json:"id"`
	RaceID        *int64 `json:"raceId,omitempty"`
	RaceLabel     string `json:"raceLabel,omitempty"`
	TriggerKind   string `json:"triggerKind"`
	ScheduledFor  string `json:"scheduledFor"`
	Status        string `json:"status"`
	ScrapeContext string `json:"scrapeContext,omitempty"`
	RetryCount    int    `json:"retryCount"`
	MaxRetries    int    `json:"maxRetries"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	EpisodeID     *int64 `json:"episodeId,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	FinishedAt    string `json:"finishedAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// Gag describes a running gag and its continuity counters.
type Gag struct {
	ID                  int64    `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	Category            string   `json:"category"`
	Character           string   `json:"character,omitempty"`
	SecondaryCharacter  string   `json:"secondaryCharacter,omitempty"`
	Setup               string   `json:"setup,omitempty"`
	Punchline           string   `json:"punchline,omitempty"`
	Variations          string   `json:"variations,omitempty"`
	Origin              string   `json:"origin,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	HumorRating         float64  `json:"humorRating"`
	TimesUsed           int      `json:"timesUsed"`
	MaxUses             int      `json:"maxUses"`
	CooldownRaces       int      `json:"cooldownRaces"`
	LastUsedSeason      *int     `json:"lastUsedSeason,omitempty"`
	LastUsedRound       *int     `json:"lastUsedRound,omitempty"`
	LastUsedAt          string   `json:"lastUsedAt,omitempty"`
	AudienceFamiliarity int      `json:"audienceFamiliarity"`
	Status              string   `json:"status"`
	CreatedAt           string   `json:"createdAt,omitempty"`
	UpdatedAt           string   `json:"updatedAt,omitempty"`
}

// Race describes a calendar entry.
type Race struct {
	ID                    int64  `json:"id"`
	Season                int    `json:"season"`
	Round                 int    `json:"round"`
	Name                  string `json:"name"`
	Circuit               string `json:"circuit,omitempty"`
	Country               string `json:"country,omitempty"`
	WeekendKind           string `json:"weekendKind"`
	RaceStart             string `json:"raceStart"`
	FP1Start              string `json:"fp1Start,omitempty"`
	FP2Start              string `json:"fp2Start,omitempty"`
	FP3Start              string `json:"fp3Start,omitempty"`
	SprintQualifyingStart string `json:"sprintQualifyingStart,omitempty"`
	SprintStart           string `json:"sprintStart,omitempty"`
	QualifyingStart       string `json:"qualifyingStart,omitempty"`
}

// Episode describes a produced (or in-flight) episode.
type Episode struct {
	ID           int64   `json:"id"`
	JobID        *int64  `json:"jobId,omitempty"`
	RaceID       *int64  `json:"raceId,omitempty"`
	TriggerKind  string  `json:"triggerKind"`
	Title        string  `json:"title,omitempty"`
	Status       string  `json:"status"`
	Stage        string  `json:"stage,omitempty"`
	SceneCount   int     `json:"sceneCount"`
	VideoPath    string  `json:"videoPath,omitempty"`
	PublishURL   string  `json:"publishUrl,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	PublishedAt  string  `json:"publishedAt,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
	Scenes       []Scene `json:"scenes,omitempty"`
}

// Scene describes one scene of an episode.
type Scene struct {
	Index      int    `json:"index"`
	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
	ImagePath  string `json:"imagePath,omitempty"`
	ClipPath   string `json:"clipPath,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	JobStats     map[string]int `json:"jobStats"`
	NextJob      *Job           `json:"nextJob,omitempty"`
}

// TriggerRequest asks the daemon to queue an immediate production run.
type TriggerRequest struct {
	TriggerKind   string `json:"triggerKind"`
	RaceID        *int64 `json:"raceId,omitempty"`
	ScrapeContext string `json:"scrapeContext,omitempty"`
}

// RetryScenesRequest names the scenes to regenerate. An empty list
// retries every failed scene.
type RetryScenesRequest struct {
	Scenes []int `json:"scenes,omitempty"`
}

// GagRequest creates or updates a running gag.
type GagRequest struct {
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	Category           string   `json:"category"`
	Character          string   `json:"character,omitempty"`
	SecondaryCharacter string   `json:"secondaryCharacter,omitempty"`
	Setup              string   `json:"setup,omitempty"`
	Punchline          string   `json:"punchline,omitempty"`
	Variations         string   `json:"variations,omitempty"`
	Origin             string   `json:"origin,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	HumorRating        float64  `json:"humorRating"`
	MaxUses            int      `json:"maxUses"`
	CooldownRaces      int      `json:"cooldownRaces"`
}

// RateGagRequest scores one recorded deployment of a gag.
type RateGagRequest struct {
	HumorRating float64 `json:"humorRating"`
	EpisodeID   int64   `json:"episodeId"`
	SceneIndex  int     `json:"sceneIndex"`
}

// RaceRequest stores or updates a calendar entry. Timestamps are RFC3339.
type RaceRequest struct {
	Season                int    `json:"season"`
	Round                 int    `json:"round"`
	Name                  string `json:"name"`
	Circuit               string `json:"circuit,omitempty"`
	Country               string `json:"country,omitempty"`
	RaceStart             string `json:"raceStart"`
	FP1Start              string `json:"fp1Start,omitempty"`
	FP2Start              string `json:"fp2Start,omitempty"`
	FP3Start              string `json:"fp3Start,omitempty"`
	SprintQualifyingStart string `json:"sprintQualifyingStart,omitempty"`
	SprintStart           string `json:"sprintStart,omitempty"`
	QualifyingStart       string `json:"qualifyingStart,omitempty"`
	HasSprint             bool   `json:"hasSprint"`
}

// SyncResponse reports what a calendar sync planned.
type SyncResponse struct {
	RaceJobs int `json:"raceJobs"`
	Recaps   int `json:"recaps"`
	Skipped  int `json:"skipped"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// GagListResponse wraps a collection of gags.
type GagListResponse struct {
	Gags []Gag `json:"gags"`
}

// GagResponse wraps a single gag.
type GagResponse struct {
	Gag Gag `json:"gag"`
}

// RaceListResponse wraps a season of races.
type RaceListResponse struct {
	Races []Race `json:"races"`
}

// EpisodeListResponse wraps a collection of episodes.
type EpisodeListResponse struct {
	Episodes []Episode `json:"episodes"`
}

// EpisodeResponse wraps a single episode with its scenes.
type EpisodeResponse struct {
	Episode Episode `json:"episode"`
}
