package profile

import "github.com/sells-group/intel-pipeline/internal/model"

// categorySpec drives retrieval and prompting for one profile category.
// CandidateSource names the extraction category whose accepted sentences
// seed the context; empty means retrieval-only.
type categorySpec struct {
	Query           string
	Instruction     string
	CandidateSource model.ExtractionCategory
}

// categorySpecs is the fixed ten-category registry, keyed by enum.
var categorySpecs = map[model.ProfileCategory]categorySpec{
	model.CategoryCompanyInfo: {
		Query:           "what does this company do, its products, services and history",
		Instruction:     "Write a concise factual description of the company: what it does, its products or services, and any known history.",
		CandidateSource: model.ExtractDescription,
	},
	model.CategoryLatestUpdates: {
		Query:       "recent news, announcements and updates about this company",
		Instruction: "Summarize the most recent news and announcements about the company.",
	},
	model.CategoryMarketPosition: {
		Query:       "this company's market position, competitors and industry standing",
		Instruction: "Describe the company's position in its market, including competitors and industry standing where stated.",
	},
	model.CategoryStrengths: {
		Query:           "what are this company's main strengths and advantages",
		Instruction:     "List the company's main strengths and competitive advantages grounded in the context.",
		CandidateSource: model.ExtractStrength,
	},
	model.CategoryChallenges: {
		Query:           "what are this company's main challenges, problems and weaknesses",
		Instruction:     "Describe the main challenges, problems, or weaknesses the company faces.",
		CandidateSource: model.ExtractWeakness,
	},
	model.CategoryOpportunities: {
		Query:           "growth opportunities and potential for this company",
		Instruction:     "Describe growth opportunities or untapped potential for the company.",
		CandidateSource: model.ExtractOpportunity,
	},
	model.CategoryDecisionMakers: {
		Query:       "executives, founders, owners and decision makers at this company",
		Instruction: "Name the executives, founders, or decision makers mentioned, with their roles. Only include people explicitly stated.",
	},
	model.CategoryFuturePlans: {
		Query:       "this company's future plans, roadmap and upcoming projects",
		Instruction: "Summarize the company's stated future plans and upcoming projects.",
	},
	model.CategorySolution: {
		Query:       "how a partner or vendor could help this company with its needs",
		Instruction: "Based on the company's situation in the context, describe what kind of solution or partnership would address its needs.",
	},
	model.CategoryActionPlan: {
		Query:       "how to approach and engage this company",
		Instruction: "Propose a short, concrete plan for approaching this company, grounded in its situation as described in the context.",
	},
}
