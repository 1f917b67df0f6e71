package classify

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// fakeEmbedder returns fixed vectors per text so cosine similarities are
// controlled exactly.
type fakeEmbedder struct {
	vectors map[string][]float32
	failOn  string
}

func (f *fakeEmbedder) Model() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == f.failOn {
		return nil, resilience.NewTransientError(errors.New("embed down"), 503)
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// vecWithCosine returns a unit vector whose cosine against [1,0] is c.
func vecWithCosine(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

const testObjective = "find growth signals for the outreach campaign"

func newTestClassifier(t *testing.T, vectors map[string][]float32) *Classifier {
	t.Helper()
	if vectors == nil {
		vectors = map[string][]float32{}
	}
	vectors[testObjective] = []float32{1, 0}
	c, err := New(&fakeEmbedder{vectors: vectors}, DefaultConfig())
	require.NoError(t, err)
	return c
}

func doc(id, text string) model.Document {
	return model.Document{ID: id, CompanyID: "co-1", CleanedText: text}
}

func TestClassify_LabelCutPoints(t *testing.T) {
	tests := []struct {
		name string
		sim  float64
		want model.RelevanceLabel
	}{
		{"well above direct cut", 0.80, model.LabelDirectlyRelevant},
		{"just above direct cut", 0.66, model.LabelDirectlyRelevant},
		{"between cuts", 0.50, model.LabelIndirectlyUseful},
		{"just above indirect cut", 0.41, model.LabelIndirectlyUseful},
		{"below indirect cut", 0.20, model.LabelNotRelevant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "neutral text with no keywords whatsoever"
			c := newTestClassifier(t, map[string][]float32{text: vecWithCosine(tt.sim)})

			res, err := c.Classify(context.Background(), doc("d1", text), testObjective)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Label)
			assert.InDelta(t, tt.sim, res.SimilarityScore, 1e-5)
			assert.InDelta(t, tt.sim, res.BoostedScore, 1e-5)
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	text := "the company announced a partnership and expansion into new markets"
	c := newTestClassifier(t, map[string][]float32{text: vecWithCosine(0.5)})

	first, err := c.Classify(context.Background(), doc("d1", text), testObjective)
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), doc("d1", text), testObjective)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClassify_KeywordBoost(t *testing.T) {
	// Two direct keywords push an indirect score over the direct cut.
	text := "the company announced a partnership and an acquisition"
	c := newTestClassifier(t, map[string][]float32{text: vecWithCosine(0.60)})

	res, err := c.Classify(context.Background(), doc("d1", text), testObjective)
	require.NoError(t, err)
	assert.Equal(t, model.LabelDirectlyRelevant, res.Label)
	assert.InDelta(t, 0.76, res.BoostedScore, 1e-5)
}

func TestClassify_BoostCapped(t *testing.T) {
	// Many keyword matches cannot add more than MaxBoost.
	text := "partnership collaboration acquisition expansion contract investment growth industry market technology"
	c := newTestClassifier(t, map[string][]float32{text: vecWithCosine(0.30)})

	res, err := c.Classify(context.Background(), doc("d1", text), testObjective)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, res.BoostedScore, 1e-5)
}

func TestClassify_PenaltyLowersScore(t *testing.T) {
	text := "read our cookie policy and unsubscribe at any time"
	c := newTestClassifier(t, map[string][]float32{text: vecWithCosine(0.45)})

	res, err := c.Classify(context.Background(), doc("d1", text), testObjective)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.BoostedScore, 1e-5)
	assert.Equal(t, model.LabelNotRelevant, res.Label)
}

func TestClassify_ConfidenceNearCutIsLow(t *testing.T) {
	text := "neutral text with no keywords whatsoever"
	c := newTestClassifier(t, map[string][]float32{text: vecWithCosine(0.66)})

	res, err := c.Classify(context.Background(), doc("d1", text), testObjective)
	require.NoError(t, err)
	// Distance to the 0.65 cut is 0.01, normalized against the 0.5
	// half-range.
	assert.InDelta(t, 0.02, res.Confidence, 1e-5)
}

func TestClassify_EmptyObjective(t *testing.T) {
	c := newTestClassifier(t, nil)
	_, err := c.Classify(context.Background(), doc("d1", "text"), "")
	require.Error(t, err)
	assert.True(t, resilience.IsConfiguration(err))
}

func TestClassifyAll_PerDocumentIsolation(t *testing.T) {
	good := "neutral text with no keywords whatsoever"
	bad := "this one fails to embed"
	fe := &fakeEmbedder{
		vectors: map[string][]float32{
			testObjective: {1, 0},
			good:          vecWithCosine(0.7),
		},
		failOn: bad,
	}
	c, err := New(fe, DefaultConfig())
	require.NoError(t, err)

	results, err := c.ClassifyAll(context.Background(),
		[]model.Document{doc("d1", good), doc("d2", bad), doc("d3", good)}, testObjective)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d1", results[0].DocumentID)
	assert.Equal(t, "d3", results[1].DocumentID)
}

func TestClassifyAll_TotalEmbedOutageSurfaces(t *testing.T) {
	down := "this one fails to embed"
	fe := &fakeEmbedder{
		vectors: map[string][]float32{testObjective: {1, 0}},
		failOn:  down,
	}
	c, err := New(fe, DefaultConfig())
	require.NoError(t, err)

	// Every document fails transiently: the outage must surface as a
	// retryable error, not as zero results.
	results, err := c.ClassifyAll(context.Background(),
		[]model.Document{doc("d1", down), doc("d2", down)}, testObjective)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Empty(t, results)
}

func TestConfig_Validate(t *testing.T) {
	bad := DefaultConfig()
	bad.IndirectCut = 0.70
	assert.Error(t, bad.Validate())

	empty := DefaultConfig()
	empty.Keywords.Direct = nil
	assert.Error(t, empty.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}
