package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harperhq/clientiq/pkg/skill"
)

const respondSystemPrompt = `You are a helpful assistant for an insurance brokerage answering questions about a client's account.

You are given a question, the SQL query that answered it, and the rows the query returned. Write a concise, natural-language answer grounded strictly in the rows.

Rules:
- Use only the data provided. Never invent names, numbers, or dates.
- If the result is a single count or aggregate, state it directly.
- For lists, summarize the notable entries rather than reciting every column.
- Format dates as "January 2, 2006". Keep the answer under a short paragraph unless the data demands more.
- Do not mention SQL, tables, or queries.`

// Responder renders query results as natural language, falling back to a
// deterministic template when the LLM is unavailable or disabled.
type Responder struct {
	llm     LLMClient
	logger  *slog.Logger
	enabled bool
	maxRows int
}

// NewResponder creates a Responder. When enabled is false, every render
// uses the template fallback and no LLM calls are made.
func NewResponder(llm LLMClient, logger *slog.Logger, enabled bool, maxRows int) *Responder {
	if maxRows <= 0 {
		maxRows = 10
	}
	return &Responder{llm: llm, logger: logger, enabled: enabled, maxRows: maxRows}
}

// Render produces the natural-language answer for a successful query. It
// never fails: an LLM error demotes the answer to the skill-specific
// template.
func (r *Responder) Render(ctx context.Context, question string, sk skill.Skill, sql string, result QueryResult) string {
	if !r.enabled {
		return skill.FormatFallback(sk, result.Rows, sql)
	}

	userPrompt := buildRenderPrompt(question, sql, result, r.maxRows)

	response, err := r.llm.Complete(ctx, respondSystemPrompt, userPrompt)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("natural-language rendering failed, using template fallback", "error", err)
		}
		return skill.FormatFallback(sk, result.Rows, sql)
	}

	answer := strings.TrimSpace(response)
	if answer == "" {
		return skill.FormatFallback(sk, result.Rows, sql)
	}
	return answer
}

// buildRenderPrompt formats the question, SQL, and a bounded slice of rows
// for the rendering call.
func buildRenderPrompt(question, sql string, result QueryResult, maxRows int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n\nSQL:\n%s\n\n", question, sql)

	if result.Count == 0 {
		b.WriteString("The query returned no rows. Tell the user no matching records were found, in terms of their question.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Results (%d rows", result.Count)
	if result.Count > maxRows {
		fmt.Fprintf(&b, ", showing first %d", maxRows)
	}
	b.WriteString("):\n")

	b.WriteString(strings.Join(result.Columns, " | ") + "\n")
	for i, row := range result.Rows {
		if i >= maxRows {
			break
		}
		values := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			values[j] = formatValueForLLM(row[col])
		}
		b.WriteString(strings.Join(values, " | ") + "\n")
	}

	if result.Count > maxRows {
		fmt.Fprintf(&b, "... and %d more rows\n", result.Count-maxRows)
	}

	return b.String()
}

// formatValueForLLM formats a single value for display to the LLM.
// Floats are rounded to 2 decimal places to avoid long decimals (like
// 3.3333333333333335) that can confuse the LLM into thinking they're
// encoded values.
func formatValueForLLM(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		if val == float32(int32(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return ""
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:97] + "..."
		}
		return s
	}
}
