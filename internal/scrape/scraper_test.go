package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/resilience"
)

func newTestScraper(t *testing.T, handler http.HandlerFunc) *HTTPScraper {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPScraper(Config{BaseURL: srv.URL, APIKey: "key"})
}

func TestFetchDocuments(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/documents", r.URL.Path)
		assert.Equal(t, "Acme", r.URL.Query().Get("company"))
		assert.Equal(t, "Columbus, OH", r.URL.Query().Get("location"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		w.Write([]byte(`[
			{"url":"https://acme.example/about","text":"About Acme.","kind":"website"},
			{"url":"https://news.example/acme","text":"Acme in the news.","kind":"news"},
			{"url":"https://empty.example","text":"","kind":"website"},
			{"url":"https://odd.example","text":"Odd page.","kind":"mystery"}
		]`))
	})

	docs, err := s.FetchDocuments(context.Background(), "co-1", "Acme", "Columbus, OH")
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.NotEmpty(t, docs[0].ID)
	assert.Equal(t, "co-1", docs[0].CompanyID)
	assert.Equal(t, "https://acme.example/about", docs[0].SourceURL)
	assert.Equal(t, "About Acme.", docs[0].RawText)
	assert.Equal(t, model.SourceKindWebsite, docs[0].SourceKind)
	assert.Equal(t, model.SourceKindNews, docs[1].SourceKind)

	// Unknown kinds fall back to other.
	assert.Equal(t, model.SourceKindOther, docs[2].SourceKind)
}

func TestFetchDocuments_OmitsEmptyLocation(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		_, has := r.URL.Query()["location"]
		assert.False(t, has)
		w.Write([]byte(`[]`))
	})

	docs, err := s.FetchDocuments(context.Background(), "co-1", "Acme", "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFetchDocuments_ServerErrorIsTransient(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream crawl failed", http.StatusBadGateway)
	})

	_, err := s.FetchDocuments(context.Background(), "co-1", "Acme", "")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchDocuments_CircuitOpensOnRepeatedOutage(t *testing.T) {
	var hits int32
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "upstream crawl failed", http.StatusServiceUnavailable)
	})

	threshold := resilience.DefaultBreakerConfig().FailureThreshold
	for i := 0; i < threshold; i++ {
		_, err := s.FetchDocuments(context.Background(), "co-1", "Acme", "")
		require.Error(t, err)
		assert.True(t, resilience.IsTransient(err))
	}
	require.EqualValues(t, threshold, atomic.LoadInt32(&hits))

	// The open circuit rejects without another upstream call, and the
	// rejection stays retryable so stage backoff can outlast the cooldown.
	_, err := s.FetchDocuments(context.Background(), "co-1", "Acme", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, resilience.IsTransient(err))
	assert.EqualValues(t, threshold, atomic.LoadInt32(&hits))
}

func TestFetchDocuments_ClientErrorNotTransient(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown company", http.StatusUnprocessableEntity)
	})

	_, err := s.FetchDocuments(context.Background(), "co-1", "Acme", "")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
