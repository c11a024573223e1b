package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"paddock/internal/config"
	"paddock/internal/services"
)

// HTTPPublisher uploads finished episodes to the configured video host.
type HTTPPublisher struct {
	cfg    config.Publish
	client *http.Client
}

// NewPublisher builds a publisher from config.
func NewPublisher(cfg config.Publish) *HTTPPublisher {
	return &HTTPPublisher{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type publishResponse struct {
	URL string `json:"url"`
}

// Publish uploads the video as multipart form data and returns the public
// URL the host assigns.
func (p *HTTPPublisher) Publish(ctx context.Context, videoPath string, meta PublishMeta) (string, error) {
	if !p.cfg.Enabled {
		return "", services.Categorize(fmt.Errorf("publishing is disabled"), services.ErrConfiguration)
	}

	file, err := os.Open(videoPath)
	if err != nil {
		return "", services.Categorize(fmt.Errorf("open video: %w", err), services.ErrValidation)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := map[string]string{
		"title":       meta.Title,
		"description": meta.Description,
		"privacy":     orDefault(meta.Privacy, p.cfg.Privacy),
		"category_id": orDefault(meta.CategoryID, p.cfg.CategoryID),
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("write field %s: %w", key, err)
		}
	}
	part, err := writer.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy video into upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", services.Categorize(fmt.Errorf("upload video: %w", err), services.ErrTransient)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", services.Wrap(err, nil, "publish episode")
	}
	var parsed publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", services.Categorize(fmt.Errorf("decode publish response: %w", err), services.ErrExternalService)
	}
	if parsed.URL == "" {
		return "", services.Categorize(fmt.Errorf("publish response contained no url"), services.ErrExternalService)
	}
	return parsed.URL, nil
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
