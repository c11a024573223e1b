package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"paddock/internal/episodes"
	"paddock/internal/gags"
	"paddock/internal/generation"
	"paddock/internal/services"
)

func episodeKey(episodeID int64) string {
	return fmt.Sprintf("episodes/%d", episodeID)
}

func sceneKey(episodeID int64, index int, ext string) string {
	return fmt.Sprintf("episodes/%d/scene%02d.%s", episodeID, index, ext)
}

func pendingScenes(scenes []*episodes.Scene) []*episodes.Scene {
	var pending []*episodes.Scene
	for _, scene := range scenes {
		switch scene.Status {
		case episodes.SceneStatusPending, episodes.SceneStatusImageDone:
			pending = append(pending, scene)
		}
	}
	return pending
}

func gagBriefs(selected []*gags.Gag) []generation.GagBrief {
	briefs := make([]generation.GagBrief, len(selected))
	for i, gag := range selected {
		briefs[i] = generation.GagBrief{
			Name:        gag.Name,
			Category:    string(gag.Category),
			Character:   gag.Character,
			Description: gag.Description,
			Familiarity: gag.AudienceFamiliarity,
			HumorRating: gag.HumorRating,
		}
	}
	return briefs
}

func scriptJSON(script *generation.Script) []byte {
	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return []byte("{}")
	}
	return data
}

func readStaged(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Categorize(fmt.Errorf("read staged asset %s: %w", path, err), services.ErrTransient)
	}
	return data, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
