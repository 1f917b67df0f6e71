package embed

import "context"

// CachedEmbedder wraps an Embedder with a content-hash cache so identical
// text is never recomputed across pipeline stages or jobs. The cache is
// injected, not ambient state.
type CachedEmbedder struct {
	inner Embedder
	cache Cache
}

// NewCachedEmbedder wraps inner with cache.
func NewCachedEmbedder(inner Embedder, cache Cache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

// Model returns the wrapped embedder's model name.
func (e *CachedEmbedder) Model() string { return e.inner.Model() }

// Embed returns the cached vector or computes and stores it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(e.inner.Model(), text)
	if vec, ok := e.cache.Get(ctx, key); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, vec)
	return vec, nil
}

// EmbedBatch serves hits from the cache and computes only the misses in a
// single upstream call.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		keys[i] = ContentHash(e.inner.Model(), t)
		if vec, ok := e.cache.Get(ctx, keys[i]); ok {
			vecs[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		computed, err := e.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range missIdx {
			vecs[i] = computed[j]
			e.cache.Set(ctx, keys[i], computed[j])
		}
	}

	return vecs, nil
}
