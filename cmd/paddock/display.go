package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var titleCaser = cases.Title(language.Und)

// displayName renders machine identifiers like "post-race" or
// "running_joke" as human-friendly labels.
func displayName(value string) string {
	if value == "" {
		return "-"
	}
	cleaned := strings.NewReplacer("-", " ", "_", " ").Replace(value)
	return titleCaser.String(cleaned)
}

// displayTime renders an API timestamp in the local timezone.
func displayTime(value string) string {
	if value == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04")
}

func statusColor(status string) string {
	switch status {
	case "completed", "published", "active":
		return ansiGreen
	case "failed", "retired":
		return ansiRed
	case "running", "cooling_down", "scripting", "rendering", "stitching", "publishing":
		return ansiYellow
	default:
		return ""
	}
}

func colorizeStatus(status string, colorize bool) string {
	label := displayName(status)
	if !colorize {
		return label
	}
	if color := statusColor(status); color != "" {
		return color + label + ansiReset
	}
	return label
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
