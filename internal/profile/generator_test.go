package profile

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-pipeline/internal/llm"
	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// fakeEmbedder returns the same unit vector for every text, so all
// retrieval similarities are 1.
type fakeEmbedder struct{}

func (fakeEmbedder) Model() string { return "fake" }

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// fakeLLM scripts responses per user prompt. Safe for the generator's
// concurrent per-category calls.
type fakeLLM struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(user string, attempt int) (string, error)
}

func newFakeLLM(respond func(user string, attempt int) (string, error)) *fakeLLM {
	return &fakeLLM{calls: make(map[string]int), respond: respond}
}

func (f *fakeLLM) Chat(_ context.Context, _, user string, _ llm.GenerateParams) (string, error) {
	f.mu.Lock()
	f.calls[user]++
	n := f.calls[user]
	f.mu.Unlock()
	return f.respond(user, n)
}

func (f *fakeLLM) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

const goodResponse = "Acme provides industrial tooling and maintenance services to regional manufacturers."

func testGenCfg() Config {
	cfg := DefaultConfig()
	// No throttling in tests.
	cfg.RatePerSec = 1000
	cfg.MaxConcurrent = 10
	return cfg
}

func testDocs() []model.Document {
	return []model.Document{{
		ID:          "d1",
		CompanyID:   "co-1",
		CleanedText: "Acme provides industrial tooling and plant maintenance services to manufacturers across the region.",
	}}
}

func testCandidates() []model.ExtractionCandidate {
	return []model.ExtractionCandidate{{
		DocumentID:   "d1",
		CompanyID:    "co-1",
		Category:     model.ExtractDescription,
		SentenceText: "Acme provides industrial tooling to manufacturers.",
		Accepted:     true,
	}}
}

func TestGenerate_AllCategoriesPopulated(t *testing.T) {
	client := newFakeLLM(func(string, int) (string, error) { return goodResponse, nil })
	g := NewGenerator(fakeEmbedder{}, client, testGenCfg())

	p, err := g.Generate(context.Background(), "co-1", "Acme Corp", testDocs(), testCandidates())
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "co-1", p.CompanyID)
	assert.Equal(t, 10, p.FieldCount())
	assert.Equal(t, []string{"d1"}, p.SupportingDocumentIDs())

	for _, cat := range model.AllProfileCategories() {
		field := p.Fields[cat]
		assert.Equal(t, goodResponse, field.Text)
		// Retrieval similarity 1 and a clean first response give full
		// confidence.
		assert.InDelta(t, 1.0, field.Confidence, 1e-9)
	}
}

func TestGenerate_RetryAfterSanityFailureLowersConfidence(t *testing.T) {
	client := newFakeLLM(func(_ string, attempt int) (string, error) {
		if attempt == 1 {
			return "nope", nil
		}
		return goodResponse, nil
	})
	g := NewGenerator(fakeEmbedder{}, client, testGenCfg())

	p, err := g.Generate(context.Background(), "co-1", "Acme Corp", testDocs(), testCandidates())
	require.NoError(t, err)

	// Every category needed the one retry: validity 0.7 instead of 1.
	assert.Equal(t, 20, client.totalCalls())
	for _, cat := range model.AllProfileCategories() {
		assert.InDelta(t, 0.6*1.0+0.4*0.7, p.Fields[cat].Confidence, 1e-9)
	}
}

func TestGenerate_CategoryFailureLeavesFieldEmpty(t *testing.T) {
	failing := categorySpecs[model.CategoryStrengths].Instruction
	client := newFakeLLM(func(user string, _ int) (string, error) {
		if strings.Contains(user, failing) {
			return "", eris.New("model exploded")
		}
		return goodResponse, nil
	})
	g := NewGenerator(fakeEmbedder{}, client, testGenCfg())

	p, err := g.Generate(context.Background(), "co-1", "Acme Corp", testDocs(), testCandidates())
	require.NoError(t, err)

	assert.Empty(t, p.Fields[model.CategoryStrengths].Text)
	assert.Equal(t, 9, p.FieldCount())
}

func TestGenerate_AllCategoriesFailedIsPartialData(t *testing.T) {
	client := newFakeLLM(func(string, int) (string, error) {
		return "", eris.New("model exploded")
	})
	g := NewGenerator(fakeEmbedder{}, client, testGenCfg())

	p, err := g.Generate(context.Background(), "co-1", "Acme Corp", testDocs(), testCandidates())
	require.Error(t, err)
	assert.True(t, resilience.IsPartialData(err))
	require.NotNil(t, p)
	assert.Equal(t, 0, p.FieldCount())
}

func TestGenerate_NoInputIsPartialData(t *testing.T) {
	client := newFakeLLM(func(string, int) (string, error) { return goodResponse, nil })
	g := NewGenerator(fakeEmbedder{}, client, testGenCfg())

	p, err := g.Generate(context.Background(), "co-1", "Acme Corp", nil, nil)
	require.Error(t, err)
	assert.True(t, resilience.IsPartialData(err))
	require.NotNil(t, p)

	// Nothing to prompt with, so the model is never called.
	assert.Equal(t, 0, client.totalCalls())
}

func TestBuildContext_CandidatesFirstWithinBudget(t *testing.T) {
	cands := []model.ExtractionCandidate{
		{DocumentID: "d1", SentenceText: "alpha", Accepted: true},
		{DocumentID: "dX", SentenceText: "rejected text", Accepted: false},
		{DocumentID: "d2", SentenceText: "beta", Accepted: true},
	}
	retrieved := []chunkRef{
		{docID: "d1", text: "gamma chunk"},
		{docID: "d3", text: "delta"},
	}

	text, docIDs := buildContext(cands, retrieved, 4000)
	assert.Equal(t, "- alpha\n- beta\ngamma chunk\ndelta", text)
	assert.Equal(t, []string{"d1", "d2", "d3"}, docIDs)
}

func TestBuildContext_BudgetStopsRetrievedChunks(t *testing.T) {
	cands := []model.ExtractionCandidate{
		{DocumentID: "d1", SentenceText: "alpha", Accepted: true},
		{DocumentID: "d2", SentenceText: "beta", Accepted: true},
	}
	retrieved := []chunkRef{{docID: "d3", text: "gamma chunk"}}

	// Budget covers exactly the two candidate lines.
	text, docIDs := buildContext(cands, retrieved, 15)
	assert.Equal(t, "- alpha\n- beta", text)
	assert.Equal(t, []string{"d1", "d2"}, docIDs)
}
