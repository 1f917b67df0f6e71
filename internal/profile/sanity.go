package profile

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// refusalMarkers indicate the model declined or produced meta-commentary
// instead of an answer.
var refusalMarkers = []string{
	"as an ai",
	"as a language model",
	"i cannot",
	"i can't",
	"i don't have access",
	"i am unable",
	"no context provided",
}

// checkResponse applies the basic sanity checks from the generation
// contract: non-empty, not boilerplate-only, and about the subject
// company. Failures are ValidationErrors, contained by the caller's
// single retry rather than surfaced as job errors.
func checkResponse(companyName, text string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 20 {
		return resilience.NewValidationError(eris.New("profile: response empty or too short"), "empty_response")
	}

	lower := strings.ToLower(trimmed)
	for _, m := range refusalMarkers {
		if strings.Contains(lower, m) {
			return resilience.NewValidationError(eris.Errorf("profile: boilerplate response (%q)", m), "boilerplate_response")
		}
	}

	// Wrong-subject check: a response that names a different company in
	// its opening sentence and never mentions the subject is discarded.
	if !mentionsCompany(companyName, lower) && startsWithOtherSubject(lower) {
		return resilience.NewValidationError(eris.New("profile: response is about the wrong subject"), "wrong_subject")
	}

	return nil
}

func mentionsCompany(companyName, lowerText string) bool {
	for _, tok := range strings.Fields(strings.ToLower(companyName)) {
		tok = strings.Trim(tok, ".,&")
		if len(tok) >= 3 && strings.Contains(lowerText, tok) {
			return true
		}
	}
	// Pronoun-led prose counts as on-subject.
	return strings.HasPrefix(lowerText, "the company") ||
		strings.HasPrefix(lowerText, "it ") ||
		strings.HasPrefix(lowerText, "they ")
}

func startsWithOtherSubject(lowerText string) bool {
	// Heuristic: an opening like "google is..." about somebody else.
	return !strings.HasPrefix(lowerText, "the ") &&
		!strings.HasPrefix(lowerText, "based on") &&
		!strings.HasPrefix(lowerText, "according to")
}
