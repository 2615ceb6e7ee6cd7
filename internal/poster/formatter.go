package poster

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// TwitterMaxLength is the maximum character count for a Twitter post.
	TwitterMaxLength = 280

	// partIndicatorLen reserves room for " (12/34)".
	partIndicatorLen = 8
)

// CharCount returns the number of characters in a chunk.
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}

// FitsInLimit checks if the text fits within the limit.
func FitsInLimit(text string, limit int) bool {
	return utf8.RuneCountInString(text) <= limit
}

// CombinedText joins the chunks the way they read as one thread.
func CombinedText(chunks []string) string {
	return strings.Join(chunks, "\n")
}

// HasContent reports whether any chunk has non-whitespace text.
func HasContent(chunks []string) bool {
	return strings.TrimSpace(CombinedText(chunks)) != ""
}

// SplitText splits text into chunks of at most limit characters, cutting at
// word boundaries and appending "(i/n)" markers when more than one chunk is
// needed. Text that already fits is returned as a single chunk.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if FitsInLimit(text, limit) {
		return []string{text}
	}

	room := limit - partIndicatorLen
	if room < 1 {
		room = 1
	}

	var parts []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			parts = append(parts, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		// Words longer than a whole chunk are hard-cut.
		for utf8.RuneCountInString(word) > room {
			flush()
			runes := []rune(word)
			parts = append(parts, string(runes[:room]))
			word = string(runes[room:])
		}

		wordLen := utf8.RuneCountInString(word)
		if currentLen > 0 && currentLen+1+wordLen > room {
			flush()
		}
		if currentLen > 0 {
			current.WriteString(" ")
			currentLen++
		}
		current.WriteString(word)
		currentLen += wordLen
	}
	flush()

	total := len(parts)
	for i, part := range parts {
		parts[i] = fmt.Sprintf("%s (%d/%d)", part, i+1, total)
	}
	return parts
}
