package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/intel-pipeline/internal/model"
)

// excludedContentPatterns match help-center, FAQ, legal, and contact
// boilerplate. A sentence matching any of them is rejected in both passes;
// these rules are never relaxed.
var excludedContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfrequently asked questions?\b`),
	regexp.MustCompile(`(?i)\bfaqs?\b`),
	regexp.MustCompile(`(?i)\bhelp\s+cent(er|re)\b`),
	regexp.MustCompile(`(?i)\bcustomer (support|service) (portal|team|hours)\b`),
	regexp.MustCompile(`(?i)\bprivacy policy\b`),
	regexp.MustCompile(`(?i)\bterms (of|and) (service|use|conditions)\b`),
	regexp.MustCompile(`(?i)\bcontact us\b`),
	regexp.MustCompile(`(?i)\bcookies?\s+(policy|settings|preferences)\b`),
	regexp.MustCompile(`(?i)\ball rights reserved\b`),
	regexp.MustCompile(`(?i)\blog ?in\b|\bsign ?(in|up)\b`),
	regexp.MustCompile(`(?i)\bclick here\b`),
	regexp.MustCompile(`(?i)\bsubscribe to\b`),
	regexp.MustCompile(`(?i)\bhow (do|can) i\b`),
}

// subjectMarkers indicate first-person company prose ("we", "our") which
// counts as being about the subject company even without its name.
var subjectMarkers = regexp.MustCompile(`(?i)(^|\W)(we|our|us)\b|\bthe (company|firm|business)\b`)

// validate applies the category's lexical rules in a fixed order and
// returns the first failure. The same rules run in both passes; only the
// score threshold differs between strict and relaxed.
func validate(spec CategorySpec, companyName, sentence string) (model.RejectionReason, bool) {
	if len(sentence) < spec.MinLength {
		return model.RejectTooShort, false
	}
	for _, re := range excludedContentPatterns {
		if re.MatchString(sentence) {
			return model.RejectExcludedContent, false
		}
	}
	if !containsCue(spec.Cues, sentence) {
		return model.RejectMissingCue, false
	}
	if !aboutSubject(companyName, sentence) {
		return model.RejectThirdParty, false
	}
	return "", true
}

func containsCue(cues []string, sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// aboutSubject reports whether the sentence is about the subject company:
// it mentions a significant token of the company name, or reads as
// first-person company prose. Sentences about third parties fail both.
func aboutSubject(companyName, sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, tok := range nameTokens(companyName) {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return subjectMarkers.MatchString(sentence)
}

// legal-suffix and stopword tokens carry no identity and are ignored when
// matching the company name.
var insignificantNameTokens = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "corp": true, "co": true,
	"company": true, "group": true, "the": true, "and": true, "of": true,
}

func nameTokens(companyName string) []string {
	var toks []string
	for _, f := range strings.Fields(strings.ToLower(companyName)) {
		f = strings.Trim(f, ".,&")
		if len(f) < 3 || insignificantNameTokens[f] {
			continue
		}
		toks = append(toks, f)
	}
	return toks
}
