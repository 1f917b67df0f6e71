package classify

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// KeywordSets holds the three keyword lists the boost model matches
// against. Entries may be single words or phrases; matching is
// case-insensitive on word boundaries.
type KeywordSets struct {
	Direct   []string `yaml:"direct" mapstructure:"direct"`
	Indirect []string `yaml:"indirect" mapstructure:"indirect"`
	Penalty  []string `yaml:"penalty" mapstructure:"penalty"`
}

// DefaultKeywords returns the built-in keyword sets. Deployments
// recalibrate per vertical via a keywords file.
func DefaultKeywords() KeywordSets {
	return KeywordSets{
		Direct: []string{
			"partnership", "collaboration", "acquisition", "expansion",
			"contract", "investment", "product launch", "growth",
		},
		Indirect: []string{
			"industry", "market", "technology", "revenue", "customers",
			"hiring", "strategy", "competitor",
		},
		Penalty: []string{
			"cookie policy", "unsubscribe", "horoscope", "lottery",
			"recipe", "weather forecast",
		},
	}
}

// LoadKeywordFile reads keyword sets from a YAML file.
func LoadKeywordFile(path string) (KeywordSets, error) {
	var ks KeywordSets
	raw, err := os.ReadFile(path)
	if err != nil {
		return ks, eris.Wrapf(err, "classify: read keywords %s", path)
	}
	if err := yaml.Unmarshal(raw, &ks); err != nil {
		return ks, eris.Wrapf(err, "classify: parse keywords %s", path)
	}
	return ks, nil
}

// keywordMatcher precompiles word-boundary patterns for each keyword.
type keywordMatcher struct {
	direct   []*regexp.Regexp
	indirect []*regexp.Regexp
	penalty  []*regexp.Regexp
}

func newKeywordMatcher(ks KeywordSets) *keywordMatcher {
	return &keywordMatcher{
		direct:   compileKeywords(ks.Direct),
		indirect: compileKeywords(ks.Indirect),
		penalty:  compileKeywords(ks.Penalty),
	}
}

func compileKeywords(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		out = append(out, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return out
}

// counts returns how many keywords from each set match the text. A keyword
// counts once no matter how often it repeats, so long documents cannot
// saturate the boost by repetition.
func (m *keywordMatcher) counts(text string) (direct, indirect, penalty int) {
	for _, re := range m.direct {
		if re.MatchString(text) {
			direct++
		}
	}
	for _, re := range m.indirect {
		if re.MatchString(text) {
			indirect++
		}
	}
	for _, re := range m.penalty {
		if re.MatchString(text) {
			penalty++
		}
	}
	return direct, indirect, penalty
}
