package generation

import "context"

// ScenePrompt is one scene as the script service defines it.
type ScenePrompt struct {
	Index    int      `json:"index"`
	Prompt   string   `json:"prompt"`
	Dialogue string   `json:"dialogue"`
	Cast     []string `json:"cast,omitempty"`
}

// Script is the structured output of the script stage.
type Script struct {
	Title      string        `json:"title"`
	Characters []string      `json:"characters"`
	Scenes     []ScenePrompt `json:"scenes"`
}

// GagBrief is the continuity context handed to the script service.
type GagBrief struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Character   string  `json:"character,omitempty"`
	Description string  `json:"description"`
	Familiarity int     `json:"familiarity"`
	HumorRating float64 `json:"humor_rating"`
}

// ScriptRequest describes the episode the script service should write.
type ScriptRequest struct {
	TriggerKind   string
	ScrapeContext string
	RaceName      string
	Season        int
	Round         int
	SceneCount    int
	Gags          []GagBrief
}

// ScriptService turns race context and continuity into an episode script.
type ScriptService interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error)
}

// ImageRequest describes one still frame to render.
type ImageRequest struct {
	Prompt     string
	Resolution string
}

// ImageService renders a scene's still frame.
type ImageService interface {
	GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error)
}

// ClipRequest describes one clip animation derived from a still.
type ClipRequest struct {
	Image    []byte
	Prompt   string
	Dialogue string
}

// ClipStatus reports where an async clip job stands.
type ClipStatus struct {
	Done     bool
	Failed   bool
	Message  string
	VideoURL string
}

// ClipService animates stills into clips. Generation is asynchronous:
// submit returns a job reference that callers poll until done, then fetch.
type ClipService interface {
	Submit(ctx context.Context, req ClipRequest) (jobRef string, err error)
	Poll(ctx context.Context, jobRef string) (*ClipStatus, error)
	Fetch(ctx context.Context, videoURL string) ([]byte, error)
}

// Stitcher concatenates scene clips into the final episode video.
type Stitcher interface {
	Stitch(ctx context.Context, clipPaths []string, outPath string) error
}

// PublishMeta accompanies an upload.
type PublishMeta struct {
	Title       string
	Description string
	Privacy     string
	CategoryID  string
}

// Publisher uploads a finished episode and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, videoPath string, meta PublishMeta) (string, error)
}
