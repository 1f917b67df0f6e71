package model

// ExtractionPass marks which threshold pass admitted a candidate.
type ExtractionPass string

const (
	PassStrict  ExtractionPass = "strict"
	PassRelaxed ExtractionPass = "relaxed"
)

// RejectionReason records why a candidate sentence was not accepted.
type RejectionReason string

const (
	RejectTooShort        RejectionReason = "too_short"
	RejectMissingCue      RejectionReason = "missing_category_cue"
	RejectExcludedContent RejectionReason = "excluded_content_pattern"
	RejectThirdParty      RejectionReason = "third_party_subject"
	RejectBelowThreshold  RejectionReason = "below_threshold"
	RejectNearDuplicate   RejectionReason = "near_duplicate"
	RejectRankedBelowCap  RejectionReason = "ranked_below_cap"
)

// ExtractionCandidate is a sentence proposed for a profile category.
// Produced transiently per extraction run; only accepted candidates are
// persisted.
type ExtractionCandidate struct {
	DocumentID      string             `json:"document_id"`
	CompanyID       string             `json:"company_id"`
	Category        ExtractionCategory `json:"category"`
	SentenceText    string             `json:"sentence_text"`
	RawScore        float64            `json:"raw_score"`
	Pass            ExtractionPass     `json:"pass"`
	Accepted        bool               `json:"accepted"`
	RejectionReason RejectionReason    `json:"rejection_reason,omitempty"`
}
