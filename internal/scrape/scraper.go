// Package scrape defines the contract with the scraping collaborator: a
// service that gathers raw web documents for a (company_name, location)
// pair, deduplicates across sources, and flags low-value page types.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/resilience"
)

// Scraper fetches documents for a company. Implementations must be safe
// for concurrent use across jobs.
type Scraper interface {
	FetchDocuments(ctx context.Context, companyID, companyName, location string) ([]model.Document, error)
}

// Config holds the scraping service endpoint settings.
type Config struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// HTTPScraper calls the scraping service over HTTP. A circuit breaker
// around the service stops repeated calls into a down upstream; an open
// circuit reports as transient so the orchestrator's backoff waits out
// the cooldown instead of failing the job.
type HTTPScraper struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker
}

// NewHTTPScraper creates an HTTPScraper.
func NewHTTPScraper(cfg Config) *HTTPScraper {
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 120
	}
	return &HTTPScraper{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		breaker: resilience.NewBreaker("scrape", resilience.DefaultBreakerConfig()),
	}
}

// scrapedDocument is the collaborator's wire format.
type scrapedDocument struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
	Kind  string `json:"kind"`
}

// FetchDocuments retrieves the collaborator's document list for a company.
// 5xx responses and transport failures are transient; the orchestrator's
// retry policy handles them.
func (s *HTTPScraper) FetchDocuments(ctx context.Context, companyID, companyName, location string) ([]model.Document, error) {
	docs, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]model.Document, error) {
		return s.fetch(ctx, companyID, companyName, location)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scrape: upstream unavailable"), 0)
	}
	return docs, err
}

func (s *HTTPScraper) fetch(ctx context.Context, companyID, companyName, location string) ([]model.Document, error) {
	q := url.Values{}
	q.Set("company", companyName)
	if location != "" {
		q.Set("location", location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v1/documents?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: build request")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scrape: request"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("scrape: status %d: %s", resp.StatusCode, string(msg))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var raw []scrapedDocument
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "scrape: decode response")
	}

	docs := make([]model.Document, 0, len(raw))
	for _, d := range raw {
		if d.Text == "" {
			continue
		}
		docs = append(docs, model.Document{
			ID:         uuid.New().String(),
			CompanyID:  companyID,
			SourceURL:  d.URL,
			RawText:    d.Text,
			SourceKind: sourceKind(d.Kind),
		})
	}
	return docs, nil
}

func sourceKind(kind string) model.SourceKind {
	switch model.SourceKind(kind) {
	case model.SourceKindWebsite, model.SourceKindNews, model.SourceKindDirectory,
		model.SourceKindSocial, model.SourceKindSupport:
		return model.SourceKind(kind)
	default:
		return model.SourceKindOther
	}
}
