package llm

// instructionTemplate is sent ahead of the composed content on every request
const instructionTemplate = `You are a helpful study reviewer generator. Based on the content below, produce:
1. Title: An appropriate title for the topic
2. Description: A short description about the topic
3. Field: Field of study (e.g., Biology, Chemistry, etc.)
4. Detailed Reviewer: A comprehensive study reviewer based on the content. Use clean, readable formatting with:
   - Clear section headers
   - Bullet points for lists
   - Important terms highlighted
   - Natural organization that flows well
   Make it comprehensive enough to serve as a complete study guide that students would actually want to use.
5. Terminologies: An array of objects (term & definition, at least 10, max 30)
6. Essential Facts: An array of strings (at least 5, max 20)

Content: `

// jsonInstruction is appended for providers without schema-constrained output
const jsonInstruction = `

Respond with a single JSON object with the keys "title", "description", "field", "detailedReviewer", "terminologies" (array of {"term", "definition"}) and "essentialFacts" (array of strings). Do not include any other text.`

// BuildPrompt places content into the instruction template
func BuildPrompt(content string) string {
	return instructionTemplate + content
}
