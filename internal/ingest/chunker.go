package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkChars bounds chunk length in characters.
const DefaultChunkChars = 512

// Chunk packs whole sentences of text into chunks of at most maxChars
// characters. A sentence longer than maxChars is split at word boundaries,
// and a word longer than maxChars is split by rune. Chunks are trimmed and
// never empty.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range SplitSentences(text) {
		for _, piece := range splitLong(sentence, maxChars) {
			if current.Len() > 0 && runeLen(current.String())+1+runeLen(piece) > maxChars {
				flush()
			}
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// SplitSentences splits text after '.', '!' or '?' when followed by
// whitespace, and at blank lines. Sentences are trimmed.
func SplitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			flush()
		}
	}
	flush()
	return sentences
}

// splitLong breaks s into pieces of at most maxChars runes.
func splitLong(s string, maxChars int) []string {
	s = strings.Join(strings.Fields(s), " ")
	if runeLen(s) <= maxChars {
		return []string{s}
	}

	var (
		pieces  []string
		current strings.Builder
	)
	for _, word := range strings.Fields(s) {
		for runeLen(word) > maxChars {
			if current.Len() > 0 {
				pieces = append(pieces, current.String())
				current.Reset()
			}
			cut := byteOffset(word, maxChars)
			pieces = append(pieces, word[:cut])
			word = word[cut:]
		}
		if current.Len() > 0 && runeLen(current.String())+1+runeLen(word) > maxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for j := range s {
		if i == n {
			return j
		}
		i++
	}
	return len(s)
}
