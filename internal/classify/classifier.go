// Package classify scores documents against a company objective with no
// hand-labeled training data: embedding similarity plus a keyword
// boost/penalty model, thresholded by configurable cut points.
package classify

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/embed"
	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// Config holds the classifier's calibratable knobs. Cut points are
// configuration so they can be recalibrated without a code change.
type Config struct {
	// Label cut points on the boosted score: >= DirectCut is
	// directly_relevant, >= IndirectCut is indirectly_useful.
	DirectCut   float64 `yaml:"direct_cut" mapstructure:"direct_cut"`
	IndirectCut float64 `yaml:"indirect_cut" mapstructure:"indirect_cut"`

	// Additive adjustments per matched keyword.
	DirectBoost   float64 `yaml:"direct_boost" mapstructure:"direct_boost"`
	IndirectBoost float64 `yaml:"indirect_boost" mapstructure:"indirect_boost"`
	Penalty       float64 `yaml:"penalty" mapstructure:"penalty"`

	// MaxBoost caps the total positive adjustment.
	MaxBoost float64 `yaml:"max_boost" mapstructure:"max_boost"`

	Keywords KeywordSets `yaml:"keywords" mapstructure:"keywords"`
}

// DefaultConfig returns calibrated defaults. All values are starting
// points, not mandates.
func DefaultConfig() Config {
	return Config{
		DirectCut:     0.65,
		IndirectCut:   0.40,
		DirectBoost:   0.08,
		IndirectBoost: 0.03,
		Penalty:       0.10,
		MaxBoost:      0.20,
		Keywords:      DefaultKeywords(),
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.IndirectCut >= c.DirectCut {
		return resilience.NewConfigurationError(eris.Errorf(
			"classify: indirect cut %.2f must be below direct cut %.2f", c.IndirectCut, c.DirectCut))
	}
	if len(c.Keywords.Direct) == 0 || len(c.Keywords.Indirect) == 0 {
		return resilience.NewConfigurationError(eris.New("classify: empty keyword set"))
	}
	return nil
}

// Classifier assigns relevance labels. Classification is a pure function
// of (text, objective, keyword config, cut points): no hidden state, so
// re-running on identical input produces identical output.
type Classifier struct {
	embedder embed.Embedder
	cfg      Config
	matcher  *keywordMatcher
}

// New creates a Classifier. The embedder should be cache-wrapped so the
// objective vector is computed once per (company, objective) pair.
func New(embedder embed.Embedder, cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		embedder: embedder,
		cfg:      cfg,
		matcher:  newKeywordMatcher(cfg.Keywords),
	}, nil
}

// Classify scores one document against the objective.
func (c *Classifier) Classify(ctx context.Context, doc model.Document, objective string) (model.ClassificationResult, error) {
	if objective == "" {
		return model.ClassificationResult{}, resilience.NewConfigurationError(
			eris.New("classify: objective text is empty"))
	}

	objVec, err := c.embedder.Embed(ctx, objective)
	if err != nil {
		return model.ClassificationResult{}, eris.Wrap(err, "classify: embed objective")
	}
	docVec, err := c.embedder.Embed(ctx, doc.CleanedText)
	if err != nil {
		return model.ClassificationResult{}, eris.Wrap(err, "classify: embed document")
	}

	sim := clip01(embed.Cosine(docVec, objVec))
	boosted := clip01(sim + c.adjustment(doc.CleanedText))
	label := c.label(boosted)

	return model.ClassificationResult{
		DocumentID:      doc.ID,
		CompanyID:       doc.CompanyID,
		ObjectiveHash:   embed.ContentHash(c.embedder.Model(), objective),
		Label:           label,
		SimilarityScore: sim,
		BoostedScore:    boosted,
		Confidence:      c.confidence(boosted),
	}, nil
}

// ClassifyAll scores a document set with per-document isolation: one
// document's failure is logged and skipped, never aborting the rest. When
// every document fails, the last error is returned instead of an empty
// result set, so a full embedding outage stays visible to the caller's
// retry policy.
func (c *Classifier) ClassifyAll(ctx context.Context, docs []model.Document, objective string) ([]model.ClassificationResult, error) {
	if objective == "" {
		return nil, resilience.NewConfigurationError(eris.New("classify: objective text is empty"))
	}

	results := make([]model.ClassificationResult, 0, len(docs))
	var lastErr error
	for _, doc := range docs {
		res, err := c.Classify(ctx, doc, objective)
		if err != nil {
			if resilience.IsConfiguration(err) || ctx.Err() != nil {
				return results, err
			}
			lastErr = err
			zap.L().Warn("classify: document skipped",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 && lastErr != nil {
		return nil, eris.Wrap(lastErr, "classify: no document classified")
	}
	return results, nil
}

// adjustment computes the additive keyword boost/penalty: +DirectBoost per
// direct keyword and +IndirectBoost per indirect keyword (total capped at
// MaxBoost), -Penalty per penalty keyword.
func (c *Classifier) adjustment(text string) float64 {
	direct, indirect, penalty := c.matcher.counts(text)
	boost := float64(direct)*c.cfg.DirectBoost + float64(indirect)*c.cfg.IndirectBoost
	if boost > c.cfg.MaxBoost {
		boost = c.cfg.MaxBoost
	}
	return boost - float64(penalty)*c.cfg.Penalty
}

func (c *Classifier) label(score float64) model.RelevanceLabel {
	switch {
	case score >= c.cfg.DirectCut:
		return model.LabelDirectlyRelevant
	case score >= c.cfg.IndirectCut:
		return model.LabelIndirectlyUseful
	default:
		return model.LabelNotRelevant
	}
}

// confidence is the distance from the nearest cut point, normalized to
// [0,1] against the half-range of the score space.
func (c *Classifier) confidence(score float64) float64 {
	d := math.Min(math.Abs(score-c.cfg.DirectCut), math.Abs(score-c.cfg.IndirectCut))
	return clip01(d / 0.5)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
