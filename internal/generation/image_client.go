package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"paddock/internal/config"
	"paddock/internal/services"
)

// ImageClient renders stills through a Gemini-compatible generateContent
// endpoint.
type ImageClient struct {
	cfg    config.Image
	client *http.Client
}

// NewImageClient builds an image client from config.
func NewImageClient(cfg config.Image) *ImageClient {
	return &ImageClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type generateContentRequest struct {
	Contents []contentPayload `json:"contents"`
}

type contentPayload struct {
	Parts []partPayload `json:"parts"`
}

type partPayload struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateImage renders one still and returns the raw image bytes.
func (c *ImageClient) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Categorize(fmt.Errorf("image service api key is not configured"), services.ErrConfiguration)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	prompt := req.Prompt
	resolution := req.Resolution
	if resolution == "" {
		resolution = c.cfg.Resolution
	}
	if resolution != "" {
		prompt = fmt.Sprintf("%s\n\nRender as a single %s frame.", prompt, resolution)
	}
	payload := generateContentRequest{
		Contents: []contentPayload{{Parts: []partPayload{{Text: prompt}}}},
	}

	var resp generateContentResponse
	if err := doJSON(ctx, c.client, http.MethodPost, url, nil, payload, &resp); err != nil {
		return nil, services.Wrap(err, nil, "generate image")
	}

	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, services.Categorize(fmt.Errorf("decode image payload: %w", err), services.ErrExternalService)
			}
			return data, nil
		}
	}
	return nil, services.Categorize(fmt.Errorf("image response contained no inline data"), services.ErrExternalService)
}
