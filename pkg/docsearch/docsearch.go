// Package docsearch answers questions from a company's uploaded
// documents (policies, quotes, certificates). Documents are retrieved
// by company, optionally narrowed by lexical term matching over their
// parsed content, and an LLM reads the candidates to produce the answer.
package docsearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Document is one stored company document with its extracted content.
type Document struct {
	ID          int64
	Filename    string
	ContentType string
	FileSize    string
	Content     string // parsed text, may be empty
	Summary     string // LLM-produced summary, may be empty
	CreatedAt   time.Time
}

// Match is one term hit inside a document's content.
type Match struct {
	Term    string
	Snippet string
}

// Store retrieves a company's documents.
type Store interface {
	// CompanyDocuments returns all documents for the company, newest
	// first.
	CompanyDocuments(ctx context.Context, companyID int64) ([]Document, error)
}

// LLMClient is the completion interface the agent renders answers with.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const answerSystemPrompt = `You are a document analyst for an insurance brokerage. You have access to the document summaries and excerpts for one client company.

Search through the documents below and answer the user's question.

Rules:
- Quote exact values from the documents (premiums, dates, coverage types, limits).
- Name the document the information came from.
- Start with the direct answer, then the supporting quote.
- If the answer is genuinely absent, say which document would most likely contain it.`

// Agent answers document questions for one company.
type Agent struct {
	store Store
	llm   LLMClient
	log   *slog.Logger
}

// NewAgent creates a document agent.
func NewAgent(store Store, llm LLMClient, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{store: store, llm: llm, log: logger}
}

// Answer retrieves the company's documents, narrows them with the given
// search terms when any content matches, and asks the LLM to answer from
// them. If the LLM call fails the formatted document listing itself is
// returned, so the caller still gets something grounded.
func (a *Agent) Answer(ctx context.Context, question string, companyID int64, terms []string) (string, error) {
	docs, err := a.store.CompanyDocuments(ctx, companyID)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve documents: %w", err)
	}
	if len(docs) == 0 {
		return "No documents found for this company.", nil
	}

	a.log.Debug("retrieved company documents", "companyID", companyID, "count", len(docs))

	matched := SearchContent(docs, terms)
	formatted := formatDocuments(docs, matched)

	response, err := a.llm.Complete(ctx, answerSystemPrompt, fmt.Sprintf("## DOCUMENTS:\n%s\n\nQuestion: %s", formatted, question))
	if err != nil {
		a.log.Warn("document answer rendering failed, returning listing", "error", err)
		return formatted, nil
	}

	return strings.TrimSpace(response), nil
}

// SearchContent finds term occurrences inside document content and
// returns per-document matches with surrounding context. Matching is
// case-insensitive; documents without parsed content never match.
func SearchContent(docs []Document, terms []string) map[int64][]Match {
	if len(terms) == 0 {
		return nil
	}

	matched := make(map[int64][]Match)
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		lower := strings.ToLower(doc.Content)
		for _, term := range terms {
			t := strings.ToLower(term)
			idx := strings.Index(lower, t)
			if idx == -1 {
				continue
			}
			start := max(0, idx-100)
			end := min(len(doc.Content), idx+len(t)+100)
			matched[doc.ID] = append(matched[doc.ID], Match{
				Term:    term,
				Snippet: "..." + doc.Content[start:end] + "...",
			})
		}
	}

	if len(matched) == 0 {
		return nil
	}
	return matched
}

// formatDocuments renders the document set for the LLM. Documents with
// term matches lead with their snippets; the rest contribute summaries.
func formatDocuments(docs []Document, matched map[int64][]Match) string {
	var b strings.Builder

	fmt.Fprintf(&b, "All documents for this company (%d total):\n\n", len(docs))

	for i, doc := range docs {
		fmt.Fprintf(&b, "Document %d: %s (%s)\n", i+1, doc.Filename, doc.ContentType)

		for _, m := range matched[doc.ID] {
			fmt.Fprintf(&b, "  Match for %q: %s\n", m.Term, m.Snippet)
		}

		if doc.Summary != "" {
			fmt.Fprintf(&b, "  Summary: %s\n", doc.Summary)
		} else if doc.Content != "" && len(matched[doc.ID]) == 0 {
			fmt.Fprintf(&b, "  Content preview: %s\n", truncate(doc.Content, 500))
		}

		b.WriteString(strings.Repeat("-", 60) + "\n")
	}

	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
