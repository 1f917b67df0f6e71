package normalize

import "strings"

// Chunk splits cleaned text into overlapping retrieval chunks of at most
// maxChars characters, breaking on sentence boundaries where possible.
// Overlap carries trailing sentences of one chunk into the next so that
// statements spanning a boundary stay retrievable.
func Chunk(text string, maxChars, overlap int) []string {
	if maxChars <= 0 {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}
	if overlap >= maxChars {
		overlap = maxChars / 4
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	var chunks []string
	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(cur, " "))

		// Seed the next chunk with trailing sentences up to the overlap budget.
		var kept []string
		keptLen := 0
		for i := len(cur) - 1; i >= 0 && keptLen+len(cur[i]) <= overlap; i-- {
			kept = append([]string{cur[i]}, kept...)
			keptLen += len(cur[i]) + 1
		}
		cur = kept
		curLen = keptLen
	}

	for _, s := range sentences {
		// A single oversized sentence becomes its own hard-split chunk.
		if len(s) > maxChars {
			flush()
			for len(s) > maxChars {
				chunks = append(chunks, s[:maxChars])
				s = s[maxChars:]
			}
			cur = []string{s}
			curLen = len(s)
			continue
		}
		if curLen+len(s)+1 > maxChars {
			flush()
		}
		cur = append(cur, s)
		curLen += len(s) + 1
	}
	flush()

	return chunks
}
