package analysis

import "fmt"

const systemPrompt = "You are a senior e-commerce consultant. You analyze website content and " +
	"respond with a single JSON object that matches the requested schema exactly. " +
	"Do not wrap the JSON in markdown fences and do not add commentary."

const websiteSchema = `{
  "title": string,
  "summary": string,
  "primaryProducts": [string],
  "targetAudience": [{"name": string, "description": string, "goals": [string], "painPoints": [string]}],
  "keyStrengths": [string],
  "improvementAreas": [string],
  "competitiveAdvantages": [string],
  "seoConsiderations": [string]
}`

const reportSchema = `{
  "title": string,
  "summary": string,
  "sections": [{"heading": string, "body": string, "bullets": [string]}],
  "recommendations": [{"priority": "high" | "medium" | "low", "action": string, "impact": string}]
}`

var instructions = map[Type]string{
	TypeWebsite: "Produce a website overview: what the business sells, who it sells to, " +
		"its strengths, where it should improve, how it differs from competitors and what " +
		"matters for search visibility. Describe two to four customer personas.",
	TypeMarketing: "Produce a marketing strategy report: positioning, channels, messaging, " +
		"offers and a prioritized list of campaigns the store should run next.",
	TypeContent: "Produce a content audit: tone of voice, clarity of product copy, gaps in " +
		"the content the site publishes and a prioritized content calendar.",
	TypeTechnical: "Produce a technical review based on what the content reveals: " +
		"navigation structure, page organization, accessibility and performance hints, " +
		"and prioritized fixes.",
}

func schemaFor(t Type) string {
	if t == TypeWebsite {
		return websiteSchema
	}
	return reportSchema
}

func userPrompt(t Type, content string) string {
	return fmt.Sprintf(
		"%s\n\nRespond with JSON matching this schema:\n%s\n\nWebsite content:\n%s",
		instructions[t], schemaFor(t), content,
	)
}
