package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paddock/internal/config"
	"paddock/internal/services"
)

// ScriptClient talks to an Anthropic-compatible messages endpoint and asks
// for a structured episode script.
type ScriptClient struct {
	cfg    config.Script
	client *http.Client
}

// NewScriptClient builds a script client from config.
func NewScriptClient(cfg config.Script) *ScriptClient {
	return &ScriptClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system"`
	Messages  []messagePayload `json:"messages"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

const scriptSystemPrompt = "You write short satirical animated scripts about motorsport. " +
	"Respond with a single JSON object: {\"title\": string, \"characters\": [string], " +
	"\"scenes\": [{\"index\": int, \"prompt\": string, \"dialogue\": string, \"cast\": [string]}]}. " +
	"Prompts describe the visual of each scene. No text outside the JSON."

// GenerateScript asks the model for an episode script and validates the
// structure it returns.
func (c *ScriptClient) GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Categorize(fmt.Errorf("script service api key is not configured"), services.ErrConfiguration)
	}

	payload := messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: 8192,
		System:    scriptSystemPrompt,
		Messages: []messagePayload{
			{Role: "user", Content: buildScriptPrompt(req)},
		},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}

	var resp messagesResponse
	if err := doJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL, headers, payload, &resp); err != nil {
		return nil, services.Wrap(err, nil, "generate script")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	script, err := parseScript(text, req.SceneCount)
	if err != nil {
		return nil, services.Categorize(fmt.Errorf("generate script: %w", err), services.ErrExternalService)
	}
	return script, nil
}

func buildScriptPrompt(req ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Episode trigger: %s.\n", req.TriggerKind)
	if req.RaceName != "" {
		fmt.Fprintf(&b, "Race: %s (season %d, round %d).\n", req.RaceName, req.Season, req.Round)
	}
	fmt.Fprintf(&b, "Source material focus: %s.\n", req.ScrapeContext)
	fmt.Fprintf(&b, "The episode has exactly %d scenes.\n", req.SceneCount)
	if len(req.Gags) > 0 {
		b.WriteString("Work these running gags in naturally, proportional to how established they are:\n")
		for _, gag := range req.Gags {
			who := gag.Character
			if who == "" {
				who = "anyone"
			}
			fmt.Fprintf(&b, "- %s (%s, about %s, familiarity %d/10): %s\n",
				gag.Name, gag.Category, who, gag.Familiarity, gag.Description)
		}
	}
	return b.String()
}

// parseScript decodes the model's JSON and normalizes scene indexes. The
// model occasionally wraps the JSON in a code fence; strip it.
func parseScript(text string, wantScenes int) (*Script, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var script Script
	if err := json.Unmarshal([]byte(trimmed), &script); err != nil {
		return nil, fmt.Errorf("script is not valid JSON: %w", err)
	}
	if strings.TrimSpace(script.Title) == "" {
		return nil, fmt.Errorf("script has no title")
	}
	if len(script.Scenes) == 0 {
		return nil, fmt.Errorf("script has no scenes")
	}
	if wantScenes > 0 && len(script.Scenes) != wantScenes {
		return nil, fmt.Errorf("script has %d scenes, want %d", len(script.Scenes), wantScenes)
	}
	for i := range script.Scenes {
		script.Scenes[i].Index = i
		if strings.TrimSpace(script.Scenes[i].Prompt) == "" {
			return nil, fmt.Errorf("scene %d has an empty prompt", i)
		}
	}
	return &script, nil
}
