package orchestration

import (
	"strings"
	"unicode"
)

const (
	DefaultMinChunkWords                = 12
	DefaultMinChunkWordsAfterCorrection = 8
)

var abbreviations = []string{
	"dr.", "mr.", "mrs.", "ms.", "jr.", "sr.", "st.",
	"prof.", "vs.", "etc.", "approx.",
	"i.e.", "e.g.", "a.m.", "p.m.", "u.s.", "u.k.",
}

// sentenceChunker groups speakable text into pieces worth synthesizing on
// their own: whole sentences, or runs of words long enough to sound natural.
type sentenceChunker struct {
	buffer   strings.Builder
	minWords int
}

func newSentenceChunker(minWords int) *sentenceChunker {
	return &sentenceChunker{minWords: minWords}
}

func (c *sentenceChunker) SetMinWords(minWords int) {
	c.minWords = minWords
}

// Add appends text and returns every chunk that became ready.
func (c *sentenceChunker) Add(text string) []string {
	c.buffer.WriteString(text)
	content := c.buffer.String()

	var chunks []string
	lastEnd := 0
	for i := 0; i < len(content); i++ {
		if isChunkBoundary(content, i) {
			chunks = appendChunk(chunks, content[lastEnd:i+1])
			lastEnd = i + 1
		}
	}
	rest := content[lastEnd:]

	// Only whole words count toward the minimum, the last one may still be
	// growing.
	if cut := lastWordEnd(rest); cut > 0 && len(strings.Fields(rest[:cut])) >= c.minWords {
		chunks = appendChunk(chunks, rest[:cut])
		rest = rest[cut:]
	}

	c.buffer.Reset()
	c.buffer.WriteString(rest)
	return chunks
}

// Flush returns whatever is left as a final chunk.
func (c *sentenceChunker) Flush() []string {
	rest := c.buffer.String()
	c.buffer.Reset()
	return appendChunk(nil, rest)
}

// Discard drops buffered text.
func (c *sentenceChunker) Discard() {
	c.buffer.Reset()
}

func appendChunk(chunks []string, text string) []string {
	text = strings.TrimSpace(text)
	if !isSpeakable(text) {
		return chunks
	}
	return append(chunks, text)
}

// isSpeakable reports whether text has any letter left once punctuation is
// ignored.
func isSpeakable(text string) bool {
	return strings.IndexFunc(text, unicode.IsLetter) >= 0
}

func isChunkBoundary(s string, i int) bool {
	switch s[i] {
	case '\n':
		return true
	case '.', '!', '?', ';', ':':
	default:
		return false
	}

	if i+1 < len(s) && !isSpace(s[i+1]) {
		return false
	}
	if s[i] != '.' {
		return true
	}
	// A trailing period after a digit may still be a decimal point.
	if i+1 == len(s) && i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		return false
	}
	return !isAbbreviation(s, i)
}

func isAbbreviation(s string, i int) bool {
	start := i
	for start > 0 && !isSpace(s[start-1]) {
		start--
	}
	word := strings.ToLower(strings.TrimLeft(s[start:i+1], "(\"'"))
	for _, abbreviation := range abbreviations {
		if word == abbreviation {
			return true
		}
	}

	// Initials such as "J."
	return i >= 1 && s[i-1] >= 'A' && s[i-1] <= 'Z' && (i < 2 || isSpace(s[i-2]))
}

// lastWordEnd returns the index just past the last complete word of s.
func lastWordEnd(s string) int {
	if s == "" {
		return 0
	}
	if isSpace(s[len(s)-1]) {
		return len(s)
	}
	return strings.LastIndexAny(s, " \t\r\n") + 1
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}
