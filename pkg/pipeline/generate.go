package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/harperhq/clientiq/pkg/skill"
)

// recentAnswerLimit and olderAnswerLimit bound how much of each prior
// answer is replayed into the generation prompt. The most recent turn
// gets more room because follow-up questions usually refer to it.
const (
	recentAnswerLimit = 600
	olderAnswerLimit  = 300
)

// Generator turns a question plus skill context into a SQL generation
// attempt via the LLM.
type Generator struct {
	llm LLMClient
}

// NewGenerator creates a Generator backed by the given LLM client.
func NewGenerator(llm LLMClient) *Generator {
	return &Generator{llm: llm}
}

// Generate produces one SQL generation attempt. errorFeedback carries the
// failure message from the previous attempt, verbatim, or is empty on the
// first attempt. The call makes exactly one LLM request; retry policy
// belongs to the caller.
func (g *Generator) Generate(ctx context.Context, question string, sk skill.Skill, companyID int64, history []ConversationTurn, errorFeedback string) (GenerationResult, error) {
	systemPrompt := skill.Context(sk, companyID)
	userPrompt := buildGeneratePrompt(question, history, errorFeedback)

	response, err := g.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	result, err := parseGenerationResponse(response)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to parse generation response: %w", err)
	}

	// A clarification request must not carry SQL downstream.
	if result.NeedsClarification {
		result.SQL = ""
	}

	return result, nil
}

// buildGeneratePrompt assembles the user prompt: prior turns, the question,
// any error feedback from the previous attempt, and the response format.
func buildGeneratePrompt(question string, history []ConversationTurn, errorFeedback string) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for i, turn := range history {
			limit := olderAnswerLimit
			if i == len(history)-1 {
				limit = recentAnswerLimit
			}
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Question, truncateAnswer(turn.Answer, limit))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User Question: %s\n", question)

	if errorFeedback != "" {
		fmt.Fprintf(&b, "\nPREVIOUS ERROR: The last attempt to answer this question failed:\n%s\n\nGenerate a corrected SQL query that avoids this error.\n", errorFeedback)
	}

	b.WriteString("\n")
	b.WriteString(formatInstructions)

	return b.String()
}

func truncateAnswer(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// formatInstructions describes the expected JSON response, derived from the
// GenerationResult struct so the prompt and the parser cannot drift apart.
var formatInstructions = buildFormatInstructions()

func buildFormatInstructions() string {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&GenerationResult{})
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// Reflection over a static struct cannot fail at runtime.
		panic(fmt.Sprintf("marshal generation schema: %v", err))
	}
	return fmt.Sprintf("Respond with a single JSON object matching this schema, and nothing else:\n```json\n%s\n```", raw)
}

// parseGenerationResponse extracts the structured result from the LLM
// response, tolerating code fences and surrounding prose.
func parseGenerationResponse(response string) (GenerationResult, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return GenerationResult{}, fmt.Errorf("no JSON object in response")
	}

	var result GenerationResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return GenerationResult{}, fmt.Errorf("invalid JSON: %w", err)
	}

	result.SQL = cleanSQL(result.SQL)
	return result, nil
}

// cleanSQL normalizes SQL by trimming whitespace and a trailing semicolon.
func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

// extractJSON finds a JSON object in the response text.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	// Look for JSON in code blocks first (most reliable)
	if start := strings.Index(response, "```json"); start != -1 {
		start += 7 // len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	// Look for JSON in generic code blocks
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(content, "{") {
				return content
			}
		}
	}

	// Try to find a JSON object anywhere in the response
	if start := strings.Index(response, "{"); start != -1 {
		return extractJSONObject(response, start)
	}

	return ""
}

// extractJSONObject extracts a balanced JSON object starting at the given
// position, respecting string literals and escapes.
func extractJSONObject(s string, start int) string {
	if start >= len(s) || s[start] != '{' {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
