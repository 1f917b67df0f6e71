package model

import "time"

// ProfileField is one generated category of a company profile. Confidence
// is derived from retrieval score and response validity, never from the
// language model itself.
type ProfileField struct {
	Text                  string   `json:"text"`
	SupportingDocumentIDs []string `json:"supporting_document_ids"`
	Confidence            float64  `json:"confidence"`
}

// CompanyProfile is the structured ten-category intelligence summary for a
// company. A generation run replaces the live profile atomically; prior
// versions are retained for audit.
type CompanyProfile struct {
	CompanyID   string                           `json:"company_id"`
	CompanyName string                           `json:"company_name"`
	Version     int                              `json:"version"`
	GeneratedAt time.Time                        `json:"generated_at"`
	Fields      map[ProfileCategory]ProfileField `json:"fields"`
}

// FieldCount returns the number of categories with non-empty text.
func (p *CompanyProfile) FieldCount() int {
	n := 0
	for _, f := range p.Fields {
		if f.Text != "" {
			n++
		}
	}
	return n
}

// SupportingDocumentIDs returns the distinct document IDs contributing to
// any field. A profile with zero contributing documents must never be
// marked complete.
func (p *CompanyProfile) SupportingDocumentIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, f := range p.Fields {
		for _, id := range f.SupportingDocumentIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}
