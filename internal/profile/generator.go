// Package profile generates the ten-category company profile via
// retrieval-augmented generation: a small per-category knowledge context
// (accepted extraction candidates plus retrieved document chunks) prompts
// a local LLM once per category, and responses are parsed and
// sanity-checked into the fixed profile schema.
package profile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/intel-pipeline/internal/embed"
	"github.com/sells-group/intel-pipeline/internal/llm"
	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/normalize"
	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// Config holds the generator knobs.
type Config struct {
	// RetrievalK is the number of chunks retrieved per category. Default: 4.
	RetrievalK int `yaml:"retrieval_k" mapstructure:"retrieval_k"`

	// MaxContextChars bounds the assembled context. Default: 4000.
	MaxContextChars int `yaml:"max_context_chars" mapstructure:"max_context_chars"`

	// ChunkChars / ChunkOverlap control document chunking for retrieval.
	ChunkChars   int `yaml:"chunk_chars" mapstructure:"chunk_chars"`
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`

	// MaxConcurrent bounds parallel per-category LLM calls. Default: 3.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// RatePerSec throttles LLM calls across categories. Default: 2.
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`

	// Params holds per-category generation settings; categories not listed
	// use llm.DefaultParams.
	Params map[model.ProfileCategory]llm.GenerateParams `yaml:"params" mapstructure:"params"`
}

// DefaultConfig returns the generator defaults.
func DefaultConfig() Config {
	return Config{
		RetrievalK:      4,
		MaxContextChars: 4000,
		ChunkChars:      800,
		ChunkOverlap:    150,
		MaxConcurrent:   3,
		RatePerSec:      2,
	}
}

func (c Config) params(cat model.ProfileCategory) llm.GenerateParams {
	if p, ok := c.Params[cat]; ok {
		return p
	}
	return llm.DefaultParams()
}

// Generator produces company profiles.
type Generator struct {
	embedder embed.Embedder
	client   llm.Client
	cfg      Config
	limiter  *rate.Limiter
}

// NewGenerator creates a Generator.
func NewGenerator(embedder embed.Embedder, client llm.Client, cfg Config) *Generator {
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 4
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 4000
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = 800
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	return &Generator{
		embedder: embedder,
		client:   client,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
}

// chunkRef ties a retrieval chunk back to its source document.
type chunkRef struct {
	docID string
	text  string
	vec   []float32
}

// Generate builds the full ten-category profile. Category generations run
// concurrently since they share no mutable state; a per-category failure
// leaves that field empty rather than failing the run. The profile is
// assembled wholly before being returned, so persistence can replace the
// live profile atomically.
//
// Returns a PartialDataError when no documents contributed to any field;
// such a run must surface as failed_partial, never done.
func (g *Generator) Generate(ctx context.Context, companyID, companyName string, docs []model.Document, candidates []model.ExtractionCandidate) (*model.CompanyProfile, error) {
	chunks, err := g.chunkDocuments(ctx, docs)
	if err != nil {
		return nil, eris.Wrap(err, "profile: chunk documents")
	}

	byCategory := groupCandidates(candidates)

	result := &model.CompanyProfile{
		CompanyID:   companyID,
		CompanyName: companyName,
		GeneratedAt: time.Now().UTC(),
		Fields:      make(map[model.ProfileCategory]model.ProfileField, len(categorySpecs)),
	}

	var mu sync.Mutex
	gr, gctx := errgroup.WithContext(ctx)
	gr.SetLimit(g.cfg.MaxConcurrent)

	for _, cat := range model.AllProfileCategories() {
		gr.Go(func() error {
			field, genErr := g.generateField(gctx, companyName, cat, chunks, byCategory[categorySpecs[cat].CandidateSource])
			if genErr != nil {
				if gctx.Err() != nil {
					return genErr
				}
				zap.L().Warn("profile: category failed",
					zap.String("company_id", companyID),
					zap.String("category", string(cat)),
					zap.Error(genErr),
				)
				field = model.ProfileField{}
			}
			mu.Lock()
			result.Fields[cat] = field
			mu.Unlock()
			return nil
		})
	}
	if err := gr.Wait(); err != nil {
		return nil, err
	}

	if len(result.SupportingDocumentIDs()) == 0 || result.FieldCount() == 0 {
		return result, resilience.NewPartialDataError(
			eris.New("profile: no documents contributed to any field"))
	}
	return result, nil
}

// chunkDocuments splits documents into retrieval chunks and embeds them in
// one batch. A batch failure here is fatal to generation since every
// category retrieves from the same chunk set.
func (g *Generator) chunkDocuments(ctx context.Context, docs []model.Document) ([]chunkRef, error) {
	var refs []chunkRef
	var texts []string
	for _, doc := range docs {
		for _, c := range normalize.Chunk(doc.CleanedText, g.cfg.ChunkChars, g.cfg.ChunkOverlap) {
			refs = append(refs, chunkRef{docID: doc.ID, text: c})
			texts = append(texts, c)
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}
	vecs, err := g.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range refs {
		refs[i].vec = vecs[i]
	}
	return refs, nil
}

// generateField runs retrieval + one LLM call for a single category,
// retrying the call once if the response fails sanity checks.
func (g *Generator) generateField(ctx context.Context, companyName string, cat model.ProfileCategory, chunks []chunkRef, cands []model.ExtractionCandidate) (model.ProfileField, error) {
	spec := categorySpecs[cat]

	retrieved, retrievalScore, err := g.retrieve(ctx, spec.Query, chunks)
	if err != nil {
		return model.ProfileField{}, eris.Wrap(err, "retrieve")
	}

	contextText, docIDs := buildContext(cands, retrieved, g.cfg.MaxContextChars)
	if contextText == "" {
		return model.ProfileField{}, eris.New("empty context")
	}

	prompt := buildPrompt(companyName, spec.Instruction, contextText)
	params := g.cfg.params(cat)

	validity := 1.0
	text, err := g.complete(ctx, companyName, prompt, params)
	if err == nil {
		if vErr := checkResponse(companyName, text); vErr != nil {
			err = vErr
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.ProfileField{}, err
		}
		// One retry covers both transient transport errors and responses
		// that failed the sanity checks.
		validity = 0.7
		text, err = g.complete(ctx, companyName, prompt, params)
		if err == nil {
			if vErr := checkResponse(companyName, text); vErr != nil {
				err = vErr
			}
		}
		if err != nil {
			return model.ProfileField{}, err
		}
	}

	// Confidence comes from retrieval quality and response validity, not
	// from the model: LLMs do not self-report reliable confidence.
	confidence := clip01(0.6*retrievalScore + 0.4*validity)

	return model.ProfileField{
		Text:                  strings.TrimSpace(text),
		SupportingDocumentIDs: docIDs,
		Confidence:            confidence,
	}, nil
}

func (g *Generator) complete(ctx context.Context, companyName, prompt string, params llm.GenerateParams) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	system := fmt.Sprintf(
		"You are a company research analyst. Answer only about %s, only from the provided context. If the context lacks the answer, say what little is known rather than inventing facts.",
		companyName,
	)
	return g.client.Chat(ctx, system, prompt, params)
}

// retrieve ranks chunks by similarity to the category query and returns
// the top K plus their mean similarity as the retrieval score.
func (g *Generator) retrieve(ctx context.Context, query string, chunks []chunkRef) ([]chunkRef, float64, error) {
	if len(chunks) == 0 {
		return nil, 0, nil
	}
	qVec, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	type ranked struct {
		ref chunkRef
		sim float64
	}
	rs := make([]ranked, len(chunks))
	for i, c := range chunks {
		rs[i] = ranked{ref: c, sim: embed.Cosine(c.vec, qVec)}
	}
	sort.SliceStable(rs, func(a, b int) bool { return rs[a].sim > rs[b].sim })

	k := g.cfg.RetrievalK
	if k > len(rs) {
		k = len(rs)
	}
	out := make([]chunkRef, 0, k)
	var sum float64
	for _, r := range rs[:k] {
		out = append(out, r.ref)
		sum += clip01(r.sim)
	}
	return out, sum / float64(k), nil
}

// buildContext assembles the bounded context window: accepted candidates
// first (they are pre-validated), then retrieved chunks until the budget
// is spent. Returns the context and contributing document IDs.
func buildContext(cands []model.ExtractionCandidate, retrieved []chunkRef, budget int) (string, []string) {
	var b strings.Builder
	seen := make(map[string]struct{})
	var docIDs []string

	add := func(docID, text string) bool {
		if b.Len()+len(text)+1 > budget {
			return false
		}
		b.WriteString(text)
		b.WriteByte('\n')
		if _, ok := seen[docID]; !ok {
			seen[docID] = struct{}{}
			docIDs = append(docIDs, docID)
		}
		return true
	}

	for _, c := range cands {
		if !c.Accepted {
			continue
		}
		if !add(c.DocumentID, "- "+c.SentenceText) {
			break
		}
	}
	for _, r := range retrieved {
		if !add(r.docID, r.text) {
			break
		}
	}

	return strings.TrimSpace(b.String()), docIDs
}

func buildPrompt(companyName, instruction, contextText string) string {
	var b strings.Builder
	b.WriteString("Company: ")
	b.WriteString(companyName)
	b.WriteString("\n\nContext:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nTask: ")
	b.WriteString(instruction)
	return b.String()
}

func groupCandidates(cands []model.ExtractionCandidate) map[model.ExtractionCategory][]model.ExtractionCandidate {
	out := make(map[model.ExtractionCategory][]model.ExtractionCandidate)
	for _, c := range cands {
		if c.Accepted {
			out[c.Category] = append(out[c.Category], c)
		}
	}
	return out
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
