package llm

import (
	"fmt"
	"strings"

	"github.com/joescharf/codelens/internal/apperr"
)

// systemPrompt is sent to providers that accept a separate system message.
const systemPrompt = `You are a meticulous senior code reviewer. You answer with a single JSON object and nothing else: no markdown fencing, no preamble, no trailing explanation.`

// responseSchema describes the exact JSON object the model must return.
const responseSchema = `{
  "issues": [
    {
      "category": "Code Quality" | "Performance" | "Security" | "Best Practices" | "Refactoring",
      "severity": "LOW" | "MEDIUM" | "HIGH" | "CRITICAL",
      "title": "Short title of the issue",
      "description": "Brief description",
      "lineNumber": number (if applicable, else null),
      "explanation": "Detailed explanation",
      "refactoredExample": "String containing the refactored code snippet"
    }
  ],
  "severityScore": number (integer 0-100, where 100 is best)
}`

// BuildPrompt constructs the review instruction for code written in language
// and used in the given context. The code is embedded verbatim.
func BuildPrompt(code, language, context string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", apperr.Input("llm.BuildPrompt", apperr.MsgCodeRequired)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following %s code for a %s context.\n", language, context)
	sb.WriteString("Return the response in strict JSON format with the following structure:\n")
	sb.WriteString(responseSchema)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Use only the category and severity values listed above\n")
	sb.WriteString("- Use null for lineNumber when the issue is not tied to a single line\n")
	sb.WriteString("- Return an empty issues array if the code has no problems\n")
	sb.WriteString("\nCode to analyze:\n")
	fmt.Fprintf(&sb, "```%s\n%s\n```\n", fenceTag(language), code)
	return sb.String(), nil
}

// fenceTag turns a display language like "C++" or "Type Script" into a fence tag.
func fenceTag(language string) string {
	return strings.ToLower(strings.Join(strings.Fields(language), ""))
}
