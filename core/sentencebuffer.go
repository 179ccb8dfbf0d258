package orchestration

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// BufferingConfig tunes the first-audio-latency versus synthesis-efficiency
// trade-off. MinGroup/MaxGroup control how many complete sentences are joined
// into one synthesis call; MaxSentenceLen forces emission of an unterminated
// accumulation so latency stays bounded even without punctuation.
type BufferingConfig struct {
	MinGroup       int
	MaxGroup       int
	MaxSentenceLen int
}

func (c BufferingConfig) withDefaults() BufferingConfig {
	if c.MinGroup < 1 {
		c.MinGroup = 1
	}
	if c.MaxGroup < c.MinGroup {
		c.MaxGroup = c.MinGroup
	}
	if c.MaxSentenceLen < 1 {
		c.MaxSentenceLen = 240
	}
	return c
}

// sentenceBuffer converts a lazy sequence of text fragments into a lazy
// sequence of complete, synthesis-ready sentences. It preserves order, keeps
// only the unterminated remainder, and never emits an empty sentence.
type sentenceBuffer struct {
	mu           sync.Mutex
	remainder    string
	sentences    []string
	consumed     int
	complete     bool
	cleared      bool
	updateSignal chan struct{}

	config BufferingConfig
}

func newSentenceBuffer(config BufferingConfig) *sentenceBuffer {
	return &sentenceBuffer{
		updateSignal: make(chan struct{}, 1),
		config:       config.withDefaults(),
	}
}

func (b *sentenceBuffer) Push(fragment string) {
	b.mu.Lock()
	b.remainder += fragment
	complete, rest := scanSentences(b.remainder, b.config.MaxSentenceLen)
	b.sentences = append(b.sentences, complete...)
	b.remainder = rest
	b.mu.Unlock()
	b.signalUpdate()
}

// Close flushes the remainder unconditionally and marks the stream done.
func (b *sentenceBuffer) Close() {
	b.mu.Lock()
	if trailing := strings.TrimSpace(b.remainder); trailing != "" {
		b.sentences = append(b.sentences, trailing)
	}
	b.remainder = ""
	b.complete = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *sentenceBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Sentences blocks until sentence groups become available and yields them in
// emission order. Groups hold between MinGroup and MaxGroup sentences, except
// for the trailing group after Close, which may be smaller.
func (b *sentenceBuffer) Sentences(yield func(string) bool) {
	for {
		b.mu.Lock()
		if b.cleared {
			b.mu.Unlock()
			return
		}

		available := len(b.sentences) - b.consumed
		if available >= b.config.MinGroup || (b.complete && available > 0) {
			take := min(available, b.config.MaxGroup)
			group := strings.Join(b.sentences[b.consumed:b.consumed+take], " ")
			b.consumed += take
			b.mu.Unlock()
			if !yield(group) {
				return
			}
			continue
		}

		if b.complete {
			b.mu.Unlock()
			return
		}

		b.mu.Unlock()
		<-b.updateSignal
	}
}

func (b *sentenceBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var full strings.Builder
	for i, sentence := range b.sentences {
		if i > 0 {
			full.WriteString(" ")
		}
		full.WriteString(sentence)
	}
	if b.remainder != "" {
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(b.remainder)
	}
	return full.String()
}

func (b *sentenceBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}

// nonTerminalAbbreviations are dot-terminated tokens that do not end a
// sentence, lowercased and without the trailing dot.
var nonTerminalAbbreviations = map[string]bool{
	"m": true, "mme": true, "mlle": true, "dr": true, "st": true,
	"mr": true, "mrs": true, "ms": true, "prof": true,
	"etc": true, "vs": true, "no": true, "env": true, "ex": true,
}

// scanSentences splits text into complete sentences and the unterminated
// remainder. A sentence completes at terminal punctuation (. ! ? …) that is
// not an abbreviation dot or a decimal point, or when the accumulated segment
// exceeds maxLen, in which case it is force-cut at the last space before the
// limit when one exists.
func scanSentences(text string, maxLen int) (complete []string, remainder string) {
	start := 0
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if !isTerminalRune(r) {
			if segmentLen(runes, start, i) > maxLen {
				cut := forcedCut(runes, start, i, maxLen)
				if sentence := strings.TrimSpace(string(runes[start:cut])); sentence != "" {
					complete = append(complete, sentence)
				}
				start = cut
			}
			continue
		}

		if r == '.' && !isSentenceEndingDot(runes, i) {
			continue
		}

		// Consume any run of terminal punctuation and trailing closers.
		end := i
		for end+1 < len(runes) && (isTerminalRune(runes[end+1]) || isClosingRune(runes[end+1])) {
			end++
		}

		if sentence := strings.TrimSpace(string(runes[start : end+1])); sentence != "" {
			complete = append(complete, sentence)
		}
		start = end + 1
		i = end
	}

	return complete, string(runes[start:])
}

func isTerminalRune(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isClosingRune(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '»'
}

// isSentenceEndingDot filters out abbreviation dots, decimal points, and
// non-final dots of an ellipsis.
func isSentenceEndingDot(runes []rune, i int) bool {
	if i+1 < len(runes) && runes[i+1] == '.' {
		return false
	}

	prevDigit := i > 0 && unicode.IsDigit(runes[i-1])
	if prevDigit {
		// Mid-number dot, or a trailing digit-dot that may still continue
		// as a decimal in a later fragment.
		if i+1 >= len(runes) || unicode.IsDigit(runes[i+1]) {
			return false
		}
	}

	wordStart := i
	for wordStart > 0 && (unicode.IsLetter(runes[wordStart-1]) || runes[wordStart-1] == '.') {
		wordStart--
	}
	word := strings.ToLower(strings.TrimSuffix(string(runes[wordStart:i]), "."))
	return !nonTerminalAbbreviations[word]
}

func segmentLen(runes []rune, start, i int) int {
	length := 0
	for _, r := range runes[start : i+1] {
		length += utf8.RuneLen(r)
	}
	return length
}

func forcedCut(runes []rune, start, i, maxLen int) int {
	lastSpace := -1
	for j := start; j <= i; j++ {
		if unicode.IsSpace(runes[j]) {
			lastSpace = j
		}
	}
	if lastSpace > start {
		return lastSpace
	}
	return i + 1
}
