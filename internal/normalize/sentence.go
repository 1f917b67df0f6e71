package normalize

import "strings"

// abbreviations that should not terminate a sentence at a trailing period.
var abbreviations = map[string]bool{
	"inc":    true,
	"ltd":    true,
	"llc":    true,
	"corp":   true,
	"co":     true,
	"vs":     true,
	"mr":     true,
	"mrs":    true,
	"ms":     true,
	"dr":     true,
	"jr":     true,
	"sr":     true,
	"st":     true,
	"no":     true,
	"etc":    true,
	"approx": true,
}

// SplitSentences splits cleaned prose into sentences. Periods after common
// business abbreviations ("Acme Inc.") and inside decimals ("4.5") do not
// terminate a sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Decimal number: digit on both sides of the period.
		if r == '.' && i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
			continue
		}

		// Abbreviation: last word before the period.
		if r == '.' && abbreviations[lastWord(b.String())] {
			continue
		}

		// Sentence ends only when followed by whitespace-then-capital or EOF.
		if i+1 < len(runes) {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
				j++
			}
			if j == i+1 || (j < len(runes) && !isUpper(runes[j]) && !isDigit(runes[j])) {
				continue
			}
		}

		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func lastWord(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	idx := strings.LastIndexAny(s, " \t")
	if idx >= 0 {
		s = s[idx+1:]
	}
	return strings.ToLower(s)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
