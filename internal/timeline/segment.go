package timeline

import (
	"strings"
	"unicode"

	"github.com/jdmedia/newsreel/internal/models"
)

// DefaultMaxChars is the target upper bound for one narrated segment.
// Short segments keep TTS requests fast and captions readable.
const DefaultMaxChars = 220

// SegmentText splits narration text into sentence groups of at most
// maxChars characters each, packing greedily. A single sentence longer
// than maxChars becomes its own segment. IDs are 1-based.
func SegmentText(text string, maxChars int) []models.NarrationSegment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var segments []models.NarrationSegment
	sid := 1
	buf := ""
	push := func(s string) {
		segments = append(segments, models.NarrationSegment{ID: sid, Text: s})
		sid++
	}

	for _, s := range splitSentences(text) {
		if runeLen(buf)+runeLen(s)+1 <= maxChars {
			buf = strings.TrimSpace(buf + " " + s)
			continue
		}
		if buf != "" {
			push(buf)
			buf = s
		} else {
			push(s)
			buf = ""
		}
	}
	if buf != "" {
		push(buf)
	}
	return segments
}

// splitSentences breaks text at sentence-final punctuation followed by
// whitespace. Trailing punctuation clusters ("?!") stay with the sentence.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if isSentenceEnd(r) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func runeLen(s string) int {
	return len([]rune(s))
}
