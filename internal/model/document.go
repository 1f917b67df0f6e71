package model

// SourceKind describes where a scraped document came from. The scraping
// collaborator assigns it; the normalizer uses it to skip low-value pages
// early.
type SourceKind string

const (
	SourceKindWebsite   SourceKind = "website"
	SourceKindNews      SourceKind = "news"
	SourceKindDirectory SourceKind = "directory"
	SourceKindSocial    SourceKind = "social"
	SourceKindSupport   SourceKind = "support"
	SourceKindOther     SourceKind = "other"
)

// Document is one scraped page or article about a company. Immutable once
// cleaned; every downstream stage consumes it read-only.
type Document struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	SourceURL   string     `json:"source_url"`
	RawText     string     `json:"raw_text"`
	CleanedText string     `json:"cleaned_text"`
	SourceKind  SourceKind `json:"source_kind"`
}
