package reference

import (
	"sort"
	"strings"
)

// Score weights
const (
	nameMatchScore    = 10
	tagMatchScore     = 5
	captionMatchScore = 1
)

// maxScoredSubjects caps subjects picked by score when no subject is named
// in the prompt.
const maxScoredSubjects = 2

// Score rates how well e fits prompt. Styles are scored on caption words
// only; subjects and scenes add name, tag and caption-word matches. All
// comparisons are case-insensitive substring checks against the prompt.
func Score(prompt string, e Entry) int {
	return score(strings.ToLower(prompt), e)
}

func score(promptLower string, e Entry) int {
	if e.Category == CategoryStyle {
		return captionScore(promptLower, e.Caption)
	}

	total := 0
	if name := strings.ToLower(strings.TrimSpace(e.Name)); name != "" && strings.Contains(promptLower, name) {
		total += nameMatchScore
	}
	for _, tag := range strings.Split(e.Tags, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && strings.Contains(promptLower, tag) {
			total += tagMatchScore
		}
	}
	return total + captionScore(promptLower, e.Caption)
}

func captionScore(promptLower, caption string) int {
	total := 0
	for _, w := range ImportantWords(caption) {
		if strings.Contains(promptLower, w) {
			total += captionMatchScore
		}
	}
	return total
}

// isNamedIn reports whether a subject's non-empty name occurs in the prompt.
func isNamedIn(promptLower string, e Entry) bool {
	name := strings.ToLower(strings.TrimSpace(e.Name))
	return name != "" && strings.Contains(promptLower, name)
}

// Select picks the references that apply to prompt. It is pure and
// deterministic.
//
//   - Subjects: every subject named in the prompt; if none is named, the two
//     best-scoring subjects with a score above zero (ties keep catalog order).
//   - Scenes and styles: every entry scoring above zero.
//
// The result lists subjects, then scenes, then styles.
func Select(prompt string, entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	promptLower := strings.ToLower(prompt)

	var subjects, scenes, styles []Entry
	for _, e := range entries {
		switch e.Category {
		case CategorySubject:
			subjects = append(subjects, e)
		case CategoryScene:
			scenes = append(scenes, e)
		case CategoryStyle:
			styles = append(styles, e)
		}
	}

	selected := selectSubjects(promptLower, subjects)
	for _, group := range [][]Entry{scenes, styles} {
		for _, e := range group {
			if score(promptLower, e) > 0 {
				selected = append(selected, e)
			}
		}
	}
	return selected
}

func selectSubjects(promptLower string, subjects []Entry) []Entry {
	var named []Entry
	for _, e := range subjects {
		if isNamedIn(promptLower, e) {
			named = append(named, e)
		}
	}
	if len(named) > 0 {
		return named
	}

	type scored struct {
		entry Entry
		score int
	}
	ranked := make([]scored, len(subjects))
	for i, e := range subjects {
		ranked[i] = scored{entry: e, score: score(promptLower, e)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	var out []Entry
	for i := 0; i < len(ranked) && i < maxScoredSubjects; i++ {
		if ranked[i].score > 0 {
			out = append(out, ranked[i].entry)
		}
	}
	return out
}

// PreviewRow is the selection computed for one prompt.
type PreviewRow struct {
	Prompt   string
	Selected []Entry
}

// Preview runs Select for the first n prompts (all of them when n <= 0), so
// an operator can check the matching before starting a run.
func Preview(prompts []string, entries []Entry, n int) []PreviewRow {
	if n <= 0 || n > len(prompts) {
		n = len(prompts)
	}
	rows := make([]PreviewRow, n)
	for i := 0; i < n; i++ {
		rows[i] = PreviewRow{Prompt: prompts[i], Selected: Select(prompts[i], entries)}
	}
	return rows
}
