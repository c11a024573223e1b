package generation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"paddock/internal/services"
)

// FFmpegStitcher concatenates scene clips with ffmpeg's concat demuxer.
type FFmpegStitcher struct {
	binary string
	// run is swapped out in tests so stitching can be exercised without
	// a real ffmpeg on PATH.
	run func(ctx context.Context, name string, args ...string) error
}

// NewFFmpegStitcher builds a stitcher around the given ffmpeg binary.
func NewFFmpegStitcher(binary string) *FFmpegStitcher {
	if binary == "" {
		binary = "ffmpeg"
	}
	s := &FFmpegStitcher{binary: binary}
	s.run = s.execRun
	return s
}

// Stitch writes a concat manifest next to the output and runs ffmpeg over
// it. Clips are stream-copied, not re-encoded.
func (s *FFmpegStitcher) Stitch(ctx context.Context, clipPaths []string, outPath string) error {
	if len(clipPaths) == 0 {
		return services.Categorize(fmt.Errorf("no clips to stitch"), services.ErrValidation)
	}
	for _, clip := range clipPaths {
		if _, err := os.Stat(clip); err != nil {
			return services.Categorize(fmt.Errorf("clip missing: %s", clip), services.ErrValidation)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure output dir: %w", err)
	}

	manifest := outPath + ".concat"
	if err := os.WriteFile(manifest, []byte(concatManifest(clipPaths)), 0o644); err != nil {
		return fmt.Errorf("write concat manifest: %w", err)
	}
	defer os.Remove(manifest)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", manifest,
		"-c", "copy",
		outPath,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return services.Categorize(fmt.Errorf("ffmpeg concat: %w", err), services.ErrTransient)
	}
	return nil
}

func (s *FFmpegStitcher) execRun(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// concatManifest renders the ffmpeg concat demuxer file format. Single
// quotes inside paths are escaped per ffmpeg's quoting rules.
func concatManifest(clipPaths []string) string {
	var b strings.Builder
	for _, clip := range clipPaths {
		escaped := strings.ReplaceAll(clip, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}
