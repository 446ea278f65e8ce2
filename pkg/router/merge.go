package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const mergePrompt = `You are synthesizing answers from two sources for an insurance brokerage assistant: database query results and document search results.

Create one unified, coherent response that answers the user's question completely. Do not repeat information covered by both sources, and do not mention the sources' mechanics.`

// Merger combines the SQL and document answers of a hybrid question
// into one response.
type Merger struct {
	llm LLMClient
	log *slog.Logger
}

// NewMerger creates a Merger.
func NewMerger(llm LLMClient, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Merger{llm: llm, log: logger}
}

// Merge synthesizes the two partial answers. It never fails: if the LLM
// is unavailable, the answers are concatenated under source labels so
// no retrieved information is lost.
func (m *Merger) Merge(ctx context.Context, question, sqlAnswer, docAnswer string) string {
	if sqlAnswer == "" {
		sqlAnswer = "No database results available."
	}
	if docAnswer == "" {
		docAnswer = "No document results available."
	}

	userPrompt := fmt.Sprintf("Original question: %s\n\nDatabase results:\n%s\n\nDocument search results:\n%s\n\nSynthesize the responses above into a single coherent answer.", question, sqlAnswer, docAnswer)

	response, err := m.llm.Complete(ctx, mergePrompt, userPrompt)
	if err != nil {
		m.log.Warn("merge synthesis failed, concatenating answers", "error", err)
		return fmt.Sprintf("**From the database:**\n%s\n\n**From documents:**\n%s", sqlAnswer, docAnswer)
	}

	return strings.TrimSpace(response)
}
