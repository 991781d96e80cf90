package reference

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxImportantWords caps how many caption words take part in scoring.
const maxImportantWords = 10

// minWordRunes is exclusive: a word needs more runes than this to count.
const minWordRunes = 3

// punctuation is everything except letters, marks, digits, underscore,
// whitespace and hyphen.
var punctuation = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s\p{Z}-]`)

// stopWords holds common Turkish and English function words.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// Turkish
		"ve", "bir", "bu", "ile", "için", "de", "da", "mi", "mı", "mu", "mü",
		"gibi", "daha", "çok", "en", "olan", "olarak", "var", "yok", "şey", "şu", "o",
		// English
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of",
		"with", "by", "from", "as", "is", "was", "are", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "should", "could",
		"may", "might", "can", "this", "that", "these", "those",
	} {
		stopWords[w] = struct{}{}
	}
}

// ImportantWords extracts up to 10 scoring keywords from free text: it
// lower-cases, turns punctuation into spaces, splits on whitespace and keeps
// words longer than three runes that are not stop words, in original order.
// Duplicates are kept.
//
// Example:
//
//	ImportantWords("A red-haired woman, standing in the rain!")
//	// []string{"red-haired", "woman", "standing", "rain"}
func ImportantWords(text string) []string {
	if text == "" {
		return nil
	}

	cleaned := punctuation.ReplaceAllString(strings.ToLower(text), " ")

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) <= minWordRunes {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
		if len(words) == maxImportantWords {
			break
		}
	}
	return words
}
