package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxSlugRunes = 40

var (
	slugStrip    = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s-]`)
	slugSpace    = regexp.MustCompile(`\s+`)
	slugUnderbar = regexp.MustCompile(`_+`)
)

// Slug makes a filename-safe fragment from a prompt: punctuation is dropped,
// whitespace becomes underscores, runs of underscores collapse and the
// result is cut to 40 runes.
func Slug(prompt string) string {
	s := strings.TrimSpace(slugStrip.ReplaceAllString(prompt, ""))
	s = slugSpace.ReplaceAllString(s, "_")
	s = slugUnderbar.ReplaceAllString(s, "_")
	if r := []rune(s); len(r) > maxSlugRunes {
		s = string(r[:maxSlugRunes])
	}
	if s == "" {
		return "prompt"
	}
	return s
}

// FileName is the extensionless name for one generated image:
// {row+1}_{slug}_{YYYYmmdd_HHMMSS}_{image+1}.
func FileName(row int, prompt string, at time.Time, image int) string {
	return fmt.Sprintf("%d_%s_%s_%d", row+1, Slug(prompt), at.Format("20060102_150405"), image+1)
}
