// Package router decides how each incoming question is answered:
// conversationally, through the SQL pipeline, through document search,
// or both. It owns the per-question orchestration around those agents.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Route names the handling path for a question.
type Route string

const (
	RouteConversational Route = "conversational"
	RouteSQLOnly        Route = "sql_only"
	RouteDocumentSearch Route = "document_search"
	RouteHybrid         Route = "hybrid"
)

// Valid reports whether r is a known route.
func (r Route) Valid() bool {
	switch r {
	case RouteConversational, RouteSQLOnly, RouteDocumentSearch, RouteHybrid:
		return true
	}
	return false
}

// Decision is the supervisor's structured routing output.
type Decision struct {
	Route               Route    `json:"route" jsonschema_description:"Which path handles the question: conversational, sql_only, document_search, or hybrid."`
	Reasoning           string   `json:"reasoning" jsonschema_description:"Brief explanation of why this routing was chosen."`
	SearchTerms         []string `json:"search_terms" jsonschema_description:"Key terms to look for in document content. Empty unless route involves document search."`
	ConversationalReply string   `json:"conversational_reply" jsonschema_description:"If route is conversational, a brief friendly response to send directly."`
}

// Record is one past routing decision, retained as the supervisor's own
// memory so follow-up questions route consistently.
type Record struct {
	Question  string
	Route     Route
	Reasoning string
}

// LLMClient is the completion interface the supervisor uses.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const routingPrompt = `You are a query router for an insurance brokerage's client data system.

Analyze the user's question and pick exactly one route.

CHECK FOR CONVERSATIONAL MESSAGES FIRST. Route "conversational" for greetings ("hello", "hi", "good morning", "how are you"), thanks, farewells, small talk, and capability questions ("what can you do?", "help"). Provide a brief friendly reply in conversational_reply. Never query data for chitchat.

Routes:
- conversational: greetings, thanks, chitchat, capability questions. No data needed.
- sql_only: phone calls and recordings, text messages, emails and quotes, company contact details, and document METADATA (listing files, counting documents).
- document_search: questions about content INSIDE documents - policy terms, clauses, coverage details, "what does the policy say".
- hybrid: needs BOTH database records AND document content.

When the route involves document search, list the key terms to look for in search_terms.

Respond with a single JSON object:
{"route": "...", "reasoning": "...", "search_terms": [], "conversational_reply": ""}`

// Supervisor makes routing decisions with the LLM, falling back to the
// SQL path when the decision cannot be obtained.
type Supervisor struct {
	llm LLMClient
	log *slog.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(llm LLMClient, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{llm: llm, log: logger}
}

// Route decides how to handle the question. prior carries this session's
// recent routing decisions for consistency on follow-ups. Route never
// fails: any error degrades to sql_only with the failure noted in the
// decision's Reasoning.
func (s *Supervisor) Route(ctx context.Context, question string, prior []Record) Decision {
	userPrompt := fmt.Sprintf("Question: %s\n\nPrevious routing decisions:\n%s\n\nAnalyze this question and decide the routing.", question, formatRecords(prior))

	response, err := s.llm.Complete(ctx, routingPrompt, userPrompt)
	if err != nil {
		s.log.Warn("routing failed, defaulting to sql_only", "error", err)
		return Decision{
			Route:     RouteSQLOnly,
			Reasoning: fmt.Sprintf("defaulted to SQL due to routing error: %v", err),
		}
	}

	decision, err := parseDecision(response)
	if err != nil {
		s.log.Warn("routing response unparseable, defaulting to sql_only", "error", err)
		return Decision{
			Route:     RouteSQLOnly,
			Reasoning: fmt.Sprintf("defaulted to SQL due to routing error: %v", err),
		}
	}

	s.log.Info("routing decision", "route", decision.Route, "reasoning", decision.Reasoning)
	return decision
}

func parseDecision(response string) (Decision, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return Decision{}, fmt.Errorf("no JSON object in routing response")
	}

	var decision Decision
	if err := json.Unmarshal([]byte(jsonStr), &decision); err != nil {
		return Decision{}, fmt.Errorf("invalid routing JSON: %w", err)
	}

	if !decision.Route.Valid() {
		return Decision{}, fmt.Errorf("unknown route %q", decision.Route)
	}

	return decision, nil
}

func formatRecords(records []Record) string {
	if len(records) == 0 {
		return "No previous routing decisions."
	}
	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "[%d] Question: %s -> Route: %s (%s)\n", i+1, truncate(rec.Question, 80), rec.Route, truncate(rec.Reasoning, 80))
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// extractJSON finds a balanced JSON object in the response text,
// tolerating code fences and surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
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
				return response[start : i+1]
			}
		}
	}

	return ""
}
