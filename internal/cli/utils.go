package cli

import "strings"

// compactTitleWords caps titles in compact output so each result stays on one short line.
const compactTitleWords = 12

// TruncateWords returns up to maxWords words of s, joined by single spaces, with "..."
// appended when words were dropped. maxWords <= 0 returns s unchanged.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if maxWords <= 0 || len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
