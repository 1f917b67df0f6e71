// Package normalize cleans raw scraped text before it reaches any scoring
// stage: HTML stripping, unicode normalization, boilerplate filtering,
// sentence splitting, and chunking for retrieval.
package normalize

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/intel-pipeline/internal/model"
)

// Config controls normalization behavior.
type Config struct {
	MaxDocuments  int `yaml:"max_documents" mapstructure:"max_documents"`
	MinTextLength int `yaml:"min_text_length" mapstructure:"min_text_length"`
}

// DefaultConfig returns the normalizer defaults.
func DefaultConfig() Config {
	return Config{
		MaxDocuments:  50,
		MinTextLength: 80,
	}
}

// lowValuePathSegments marks URL paths whose pages carry no company
// intelligence (help centers, legal boilerplate, account surfaces).
var lowValuePathSegments = map[string]bool{
	"help":           true,
	"help-center":    true,
	"support":        true,
	"faq":            true,
	"faqs":           true,
	"privacy":        true,
	"privacy-policy": true,
	"terms":          true,
	"cookie-policy":  true,
	"legal":          true,
	"login":          true,
	"signin":         true,
	"signup":         true,
	"cart":           true,
	"careers":        true,
	"jobs":           true,
	"sitemap":        true,
}

// boilerplateLineMarkers flags single lines that are navigation or consent
// chrome rather than content.
var boilerplateLineMarkers = []string{
	"accept all cookies",
	"cookie preferences",
	"we use cookies",
	"skip to main content",
	"skip to content",
	"all rights reserved",
	"subscribe to our newsletter",
	"sign up for our newsletter",
	"follow us on",
	"share this article",
	"table of contents",
	"navigation menu",
	"back to top",
	"read more",
	"terms of service",
	"privacy policy",
}

// Documents cleans and filters a scraped document set: low-value pages are
// dropped, raw text is cleaned into CleanedText, and the set is capped at
// cfg.MaxDocuments. Input documents are never mutated.
func Documents(docs []model.Document, cfg Config) []model.Document {
	out := make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		if IsLowValue(doc) {
			zap.L().Debug("normalize: skipping low-value page",
				zap.String("document_id", doc.ID),
				zap.String("url", doc.SourceURL),
			)
			continue
		}
		doc.CleanedText = CleanText(doc.RawText)
		if len(doc.CleanedText) < cfg.MinTextLength {
			continue
		}
		out = append(out, doc)
		if cfg.MaxDocuments > 0 && len(out) >= cfg.MaxDocuments {
			break
		}
	}
	return out
}

// IsLowValue reports whether a document should be skipped before cleaning.
// The scraping collaborator flags support pages via SourceKind; URL path
// checks catch the rest.
func IsLowValue(doc model.Document) bool {
	if doc.SourceKind == model.SourceKindSupport {
		return true
	}
	u, err := url.Parse(doc.SourceURL)
	if err != nil {
		return false
	}
	path := strings.Trim(strings.ToLower(u.Path), "/")
	if path == "" {
		return false
	}
	// Match on the first path segment only, so /blog/faq-about-our-team
	// does not count as a FAQ page.
	if idx := strings.Index(path, "/"); idx > 0 {
		path = path[:idx]
	}
	return lowValuePathSegments[path]
}

// CleanText converts raw scraped text to plain normalized prose: HTML is
// stripped, unicode is NFKC-normalized, boilerplate lines are dropped, and
// whitespace is collapsed.
func CleanText(raw string) string {
	text := raw
	if looksLikeHTML(text) {
		text = stripHTML(text)
	}
	text = norm.NFKC.String(text)

	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isBoilerplateLine(line) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}
	return collapseWhitespace(b.String())
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<div") ||
		strings.Contains(lower, "</p>")
}

// stripHTML extracts visible text, dropping script/style/nav/footer chrome.
// Falls back to the raw input if parsing fails.
func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, nav, header, footer, noscript, iframe, form").Remove()
	return doc.Find("body").Text()
}

func isBoilerplateLine(line string) bool {
	if len(line) > 120 {
		return false
	}
	lower := strings.ToLower(line)
	for _, m := range boilerplateLineMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
