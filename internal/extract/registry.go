// Package extract selects a bounded number of high-quality sentences per
// profile category from a document set, using a strict-then-relaxed
// two-pass threshold search over embedding similarity to category
// prototypes, gated by lexical validation rules that never relax.
package extract

import "github.com/sells-group/intel-pipeline/internal/model"

// CategorySpec bundles everything category-specific: cue words the
// validators require, prototype sentences the scorer embeds, and the
// minimum sentence length. Looked up by enum, never by matching on
// category name strings.
type CategorySpec struct {
	Category   model.ExtractionCategory
	Cues       []string
	Prototypes []string
	MinLength  int
}

// Registry maps extraction categories to their specs.
type Registry map[model.ExtractionCategory]CategorySpec

// DefaultRegistry returns the built-in category specs. Cue lists and
// prototypes are calibratable starting points.
func DefaultRegistry() Registry {
	return Registry{
		model.ExtractDescription: {
			Category:  model.ExtractDescription,
			MinLength: 40,
			Cues: []string{
				"is a", "is an", "provides", "offers", "specializes",
				"founded", "headquartered", "operates", "serves", "develops",
			},
			Prototypes: []string{
				"The company is a provider of software and services for enterprise customers.",
				"Founded in 1998, the firm operates manufacturing facilities across three countries.",
				"The company specializes in logistics solutions for retail businesses.",
			},
		},
		model.ExtractStrength: {
			Category:  model.ExtractStrength,
			MinLength: 40,
			Cues: []string{
				"leading", "leader", "award", "strong", "growth", "expanded",
				"innovative", "trusted", "largest", "best", "success",
				"expertise", "experienced", "patented",
			},
			Prototypes: []string{
				"The company is a market leader with strong year-over-year revenue growth.",
				"Its award-winning products are trusted by hundreds of enterprise customers.",
				"The firm has deep expertise and a patented technology platform.",
			},
		},
		model.ExtractWeakness: {
			Category:  model.ExtractWeakness,
			MinLength: 40,
			Cues: []string{
				"challenge", "concern", "decline", "struggl", "difficult",
				"loss", "lawsuit", "layoff", "shortage", "criticism",
				"risk", "pressure", "delay", "complaint",
			},
			Prototypes: []string{
				"The company faces challenges from declining sales and rising costs.",
				"It has struggled with staffing shortages and delivery delays.",
				"Regulatory pressure and customer complaints remain a concern for the firm.",
			},
		},
		model.ExtractOpportunity: {
			Category:  model.ExtractOpportunity,
			MinLength: 40,
			Cues: []string{
				"opportunity", "potential", "plan", "expand", "invest",
				"partnership", "new market", "launch", "upcoming", "demand",
				"emerging", "initiative",
			},
			Prototypes: []string{
				"The company plans to expand into new markets next year.",
				"Growing demand creates an opportunity for new partnerships and investment.",
				"It is launching an initiative to capture emerging customer segments.",
			},
		},
	}
}
