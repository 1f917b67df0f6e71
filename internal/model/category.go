package model

// ProfileCategory identifies one of the ten named fields of a company
// profile. Lookup by enum, never by matching on raw strings.
type ProfileCategory string

const (
	CategoryLatestUpdates  ProfileCategory = "latest_updates"
	CategoryChallenges     ProfileCategory = "challenges"
	CategoryDecisionMakers ProfileCategory = "decision_makers"
	CategoryMarketPosition ProfileCategory = "market_position"
	CategoryFuturePlans    ProfileCategory = "future_plans"
	CategoryActionPlan     ProfileCategory = "action_plan"
	CategorySolution       ProfileCategory = "solution"
	CategoryCompanyInfo    ProfileCategory = "company_info"
	CategoryStrengths      ProfileCategory = "strengths"
	CategoryOpportunities  ProfileCategory = "opportunities"
)

// AllProfileCategories returns the ten profile categories in generation order.
func AllProfileCategories() []ProfileCategory {
	return []ProfileCategory{
		CategoryCompanyInfo,
		CategoryLatestUpdates,
		CategoryMarketPosition,
		CategoryStrengths,
		CategoryChallenges,
		CategoryOpportunities,
		CategoryDecisionMakers,
		CategoryFuturePlans,
		CategorySolution,
		CategoryActionPlan,
	}
}

// ExtractionCategory identifies a sentence-extraction target.
type ExtractionCategory string

const (
	ExtractDescription ExtractionCategory = "description"
	ExtractStrength    ExtractionCategory = "strength"
	ExtractWeakness    ExtractionCategory = "weakness"
	ExtractOpportunity ExtractionCategory = "opportunity"
)

// AllExtractionCategories returns the four extraction categories.
func AllExtractionCategories() []ExtractionCategory {
	return []ExtractionCategory{ExtractDescription, ExtractStrength, ExtractWeakness, ExtractOpportunity}
}
