package model

// RelevanceLabel is the weak-supervision class assigned to a document
// against a company objective.
type RelevanceLabel string

const (
	LabelDirectlyRelevant RelevanceLabel = "directly_relevant"
	LabelIndirectlyUseful RelevanceLabel = "indirectly_useful"
	LabelNotRelevant      RelevanceLabel = "not_relevant"
)

// ClassificationResult is one document's relevance score against one
// objective. Overwritten on re-classification, never mutated in place.
type ClassificationResult struct {
	DocumentID      string         `json:"document_id"`
	CompanyID       string         `json:"company_id"`
	ObjectiveHash   string         `json:"objective_hash"`
	Label           RelevanceLabel `json:"label"`
	SimilarityScore float64        `json:"similarity_score"`
	BoostedScore    float64        `json:"boosted_score"`
	Confidence      float64        `json:"confidence"`
}

// Relevant reports whether the document should feed downstream stages.
func (r ClassificationResult) Relevant() bool {
	return r.Label != LabelNotRelevant
}
