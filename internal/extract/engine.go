package extract

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/embed"
	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/normalize"
	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// Config holds the extraction thresholds. Strict thresholds are
// per-category; everything here is a calibratable knob.
type Config struct {
	// StrictThresholds maps category to the strict-pass score cut.
	// Categories not listed use DefaultStrictThreshold.
	StrictThresholds map[model.ExtractionCategory]float64 `yaml:"strict_thresholds" mapstructure:"strict_thresholds"`

	// DefaultStrictThreshold is the fallback strict cut. Default: 0.55.
	DefaultStrictThreshold float64 `yaml:"default_strict_threshold" mapstructure:"default_strict_threshold"`

	// RelaxDelta is subtracted from the strict cut for the relaxed pass.
	// Default: 0.12.
	RelaxDelta float64 `yaml:"relax_delta" mapstructure:"relax_delta"`

	// MinCandidates triggers the relaxed pass when the strict pass yields
	// fewer accepted candidates. Default: 2.
	MinCandidates int `yaml:"min_candidates" mapstructure:"min_candidates"`

	// MaxAccepted caps accepted candidates per (company, category).
	// Default: 5.
	MaxAccepted int `yaml:"max_accepted" mapstructure:"max_accepted"`

	// DedupThreshold collapses near-duplicate sentences: pairwise
	// similarity above it keeps only the higher-scored instance.
	// Default: 0.86.
	DedupThreshold float64 `yaml:"dedup_threshold" mapstructure:"dedup_threshold"`
}

// DefaultConfig returns the calibrated extraction defaults.
func DefaultConfig() Config {
	return Config{
		DefaultStrictThreshold: 0.55,
		RelaxDelta:             0.12,
		MinCandidates:          2,
		MaxAccepted:            5,
		DedupThreshold:         0.86,
	}
}

func (c Config) strictThreshold(cat model.ExtractionCategory) float64 {
	if t, ok := c.StrictThresholds[cat]; ok {
		return t
	}
	return c.DefaultStrictThreshold
}

// Engine runs two-pass adaptive extraction. Prototype centroids are
// embedded once per category and reused across runs.
type Engine struct {
	embedder embed.Embedder
	cfg      Config
	registry Registry

	mu        sync.Mutex
	centroids map[model.ExtractionCategory][]float32
}

// NewEngine creates an extraction engine.
func NewEngine(embedder embed.Embedder, cfg Config, registry Registry) (*Engine, error) {
	if cfg.RelaxDelta <= 0 {
		return nil, resilience.NewConfigurationError(eris.New("extract: relax delta must be positive"))
	}
	if cfg.MaxAccepted <= 0 {
		return nil, resilience.NewConfigurationError(eris.New("extract: max accepted must be positive"))
	}
	if len(registry) == 0 {
		registry = DefaultRegistry()
	}
	return &Engine{
		embedder:  embedder,
		cfg:       cfg,
		registry:  registry,
		centroids: make(map[model.ExtractionCategory][]float32),
	}, nil
}

// scored pairs a validated sentence with its embedding and score.
type scored struct {
	docID        string
	text         string
	vec          []float32
	score        float64
	pass         model.ExtractionPass
	accepted     bool
	dedupDropped bool
	capDropped   bool
}

// Extract selects candidate sentences for one category across a document
// set. All candidates are returned, accepted and rejected alike, so
// callers can persist the accepted ones and log rejection reasons.
//
// Pass policy: strict first; if it accepts fewer than MinCandidates, the
// relaxed pass lowers only the score cut. Validation rules are identical
// in both passes, so relaxation improves recall without admitting content
// a strict run would reject on a lexical rule.
func (e *Engine) Extract(ctx context.Context, companyName string, docs []model.Document, cat model.ExtractionCategory) ([]model.ExtractionCandidate, error) {
	spec, ok := e.registry[cat]
	if !ok {
		return nil, resilience.NewConfigurationError(eris.Errorf("extract: unknown category %q", cat))
	}

	centroid, err := e.centroid(ctx, spec)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: prototype centroid for %s", cat)
	}

	log := zap.L().With(zap.String("category", string(cat)), zap.String("company", companyName))

	var out []model.ExtractionCandidate
	var pool []scored
	companyID := ""

	for _, doc := range docs {
		companyID = doc.CompanyID
		sentences := normalize.SplitSentences(doc.CleanedText)

		var valid []string
		for _, s := range sentences {
			reason, ok := validate(spec, companyName, s)
			if !ok {
				out = append(out, model.ExtractionCandidate{
					DocumentID:      doc.ID,
					CompanyID:       doc.CompanyID,
					Category:        cat,
					SentenceText:    s,
					Pass:            model.PassStrict,
					Accepted:        false,
					RejectionReason: reason,
				})
				continue
			}
			valid = append(valid, s)
		}
		if len(valid) == 0 {
			continue
		}

		// Per-document isolation: an embedding failure drops this
		// document's sentences, not the whole run.
		vecs, err := e.embedder.EmbedBatch(ctx, valid)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			log.Warn("extract: document skipped", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}

		for i, s := range valid {
			pool = append(pool, scored{
				docID: doc.ID,
				text:  s,
				vec:   vecs[i],
				score: clip01(embed.Cosine(vecs[i], centroid)),
			})
		}
	}

	strictCut := e.cfg.strictThreshold(cat)
	accepted := applyThreshold(pool, strictCut, model.PassStrict)

	if accepted < e.cfg.MinCandidates {
		relaxedCut := strictCut - e.cfg.RelaxDelta
		accepted = applyThreshold(pool, relaxedCut, model.PassRelaxed)
		log.Debug("extract: relaxed pass triggered",
			zap.Float64("strict_cut", strictCut),
			zap.Float64("relaxed_cut", relaxedCut),
			zap.Int("accepted", accepted),
		)
	}

	deduplicate(pool, e.cfg.DedupThreshold)
	capAccepted(pool, e.cfg.MaxAccepted)

	for _, s := range pool {
		c := model.ExtractionCandidate{
			DocumentID:   s.docID,
			CompanyID:    companyID,
			Category:     cat,
			SentenceText: s.text,
			RawScore:     s.score,
			Pass:         s.pass,
			Accepted:     s.accepted,
		}
		if !s.accepted {
			c.RejectionReason = rejectionFor(s)
		}
		out = append(out, c)
	}

	return out, nil
}

// applyThreshold marks pool entries at or above cut as accepted. Entries
// already accepted by an earlier (stricter) pass keep their pass label.
// Returns the accepted count.
func applyThreshold(pool []scored, cut float64, pass model.ExtractionPass) int {
	n := 0
	for i := range pool {
		if pool[i].accepted {
			n++
			continue
		}
		pool[i].pass = pass
		if pool[i].score >= cut {
			pool[i].accepted = true
			n++
		}
	}
	return n
}

// deduplicate collapses semantic near-duplicates among accepted entries,
// keeping the higher-scored instance. Idempotent: a second run over an
// already-deduplicated pool changes nothing.
func deduplicate(pool []scored, threshold float64) {
	idx := acceptedIndexesByScore(pool)
	var kept []int
	for _, i := range idx {
		dup := false
		for _, k := range kept {
			if embed.Cosine(pool[i].vec, pool[k].vec) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			pool[i].accepted = false
			pool[i].dedupDropped = true
			continue
		}
		kept = append(kept, i)
	}
}

// capAccepted keeps only the top-N accepted entries by score.
func capAccepted(pool []scored, maxAccepted int) {
	idx := acceptedIndexesByScore(pool)
	for rank, i := range idx {
		if rank >= maxAccepted {
			pool[i].accepted = false
			pool[i].capDropped = true
		}
	}
}

func acceptedIndexesByScore(pool []scored) []int {
	var idx []int
	for i := range pool {
		if pool[i].accepted {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return pool[idx[a]].score > pool[idx[b]].score })
	return idx
}

func rejectionFor(s scored) model.RejectionReason {
	switch {
	case s.dedupDropped:
		return model.RejectNearDuplicate
	case s.capDropped:
		return model.RejectRankedBelowCap
	default:
		return model.RejectBelowThreshold
	}
}

// centroid returns the category's prototype centroid, embedding the
// prototypes on first use.
func (e *Engine) centroid(ctx context.Context, spec CategorySpec) ([]float32, error) {
	e.mu.Lock()
	if v, ok := e.centroids[spec.Category]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	vecs, err := e.embedder.EmbedBatch(ctx, spec.Prototypes)
	if err != nil {
		return nil, err
	}
	c := embed.Centroid(vecs)

	e.mu.Lock()
	e.centroids[spec.Category] = c
	e.mu.Unlock()
	return c, nil
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
