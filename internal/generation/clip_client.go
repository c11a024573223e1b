package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"paddock/internal/config"
	"paddock/internal/services"
)

// ClipClient drives an asynchronous image-to-video endpoint. Submissions
// are rate limited because clip providers throttle aggressively and a
// 24-scene fan-out would trip that immediately.
type ClipClient struct {
	cfg     config.Video
	client  *http.Client
	limiter *rate.Limiter
}

// NewClipClient builds a clip client from config. clipsPerMinute bounds the
// submission rate across all concurrent scenes.
func NewClipClient(cfg config.Video, clipsPerMinute int) *ClipClient {
	if clipsPerMinute <= 0 {
		clipsPerMinute = 1
	}
	return &ClipClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(clipsPerMinute)), 1),
	}
}

type submitRequest struct {
	ImageBase64 string `json:"image_base64"`
	Prompt      string `json:"prompt"`
	Dialogue    string `json:"dialogue,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

// Submit enqueues a clip render and returns the provider's job reference.
func (c *ClipClient) Submit(ctx context.Context, req ClipRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.Categorize(fmt.Errorf("video service api key is not configured"), services.ErrConfiguration)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload := submitRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(req.Image),
		Prompt:      req.Prompt,
		Dialogue:    req.Dialogue,
		Quality:     c.cfg.Quality,
	}
	var resp submitResponse
	err := doJSON(ctx, c.client, http.MethodPost, c.endpoint("/generate"), c.headers(), payload, &resp)
	if err != nil {
		return "", services.Wrap(err, nil, "submit clip")
	}
	if resp.JobID == "" {
		return "", services.Categorize(fmt.Errorf("clip submission returned no job id"), services.ErrExternalService)
	}
	return resp.JobID, nil
}

// Poll reports the state of a clip job.
func (c *ClipClient) Poll(ctx context.Context, jobRef string) (*ClipStatus, error) {
	var resp statusResponse
	err := doJSON(ctx, c.client, http.MethodGet, c.endpoint("/status/"+jobRef), c.headers(), nil, &resp)
	if err != nil {
		return nil, services.Wrap(err, nil, "poll clip", jobRef)
	}

	switch resp.Status {
	case "done", "completed":
		if resp.VideoURL == "" {
			return nil, services.Categorize(fmt.Errorf("clip %s finished without a video url", jobRef), services.ErrExternalService)
		}
		return &ClipStatus{Done: true, VideoURL: resp.VideoURL}, nil
	case "failed", "error":
		return &ClipStatus{Failed: true, Message: resp.Error}, nil
	default:
		return &ClipStatus{}, nil
	}
}

// Fetch downloads a finished clip.
func (c *ClipClient) Fetch(ctx context.Context, videoURL string) ([]byte, error) {
	data, err := fetchBytes(ctx, c.client, videoURL)
	if err != nil {
		return nil, services.Wrap(err, nil, "fetch clip")
	}
	return data, nil
}

func (c *ClipClient) endpoint(path string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + path
}

func (c *ClipClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}
