package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"paddock/internal/services"
)

const maxResponseBytes = 64 << 20

// doJSON executes an HTTP request with a JSON body and decodes the JSON
// response into out. Status codes are mapped onto the shared error
// categories so callers can tell retryable provider hiccups from hard
// rejections.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return services.Categorize(fmt.Errorf("%s %s: %w", method, url, err), services.ErrTransient)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// fetchBytes downloads a binary payload.
func fetchBytes(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, services.Categorize(fmt.Errorf("fetch %s: %w", url, err), services.ErrTransient)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.Categorize(fmt.Errorf("read %s: %w", url, err), services.ErrTransient)
	}
	return data, nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Categorize(
			fmt.Errorf("%s returned %s", resp.Request.URL.Host, resp.Status), services.ErrTransient)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Categorize(
			fmt.Errorf("%s returned %s", resp.Request.URL.Host, resp.Status), services.ErrConfiguration)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Categorize(
			fmt.Errorf("%s returned %s: %s", resp.Request.URL.Host, resp.Status, bytes.TrimSpace(snippet)),
			services.ErrExternalService)
	}
}
