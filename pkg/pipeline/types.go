package pipeline

import (
	"context"
	"log/slog"

	"github.com/harperhq/clientiq/pkg/skill"
	"github.com/harperhq/clientiq/pkg/sqlcheck"
)

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Querier executes SQL queries against the tenant-scoped store.
type Querier interface {
	// Query executes a SQL query. Engine-level failures (unknown column,
	// type mismatch) are returned as errors with the engine's message
	// intact so they can feed the retry loop.
	Query(ctx context.Context, sql string) (QueryResult, error)
}

// QueryResult holds the rows returned by one query execution.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
	Count   int
}

// ConversationTurn is one prior question/answer exchange. The pipeline
// treats the history slice as read-only input; it is owned by the caller.
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GenerationResult is the structured output of one SQL generation attempt.
// If NeedsClarification is set, SQL is empty.
type GenerationResult struct {
	NeedsClarification    bool   `json:"needs_clarification" jsonschema_description:"Set to true only when the question is too vague to determine what data to query, e.g. 'show me stuff', 'give me data', 'what about them?'. Questions naming a channel or clear intent never need clarification."`
	ClarificationQuestion string `json:"clarification_question" jsonschema_description:"If needs_clarification is true, a specific, actionable follow-up question offering concrete choices."`
	Reasoning             string `json:"reasoning" jsonschema_description:"Why these tables, columns, filters and joins were chosen."`
	SQL                   string `json:"sql" jsonschema_description:"The generated SQL query. Empty if needs_clarification is true."`
	Explanation           string `json:"explanation" jsonschema_description:"What the query does in plain English."`
}

// Attempt records one iteration of the retry loop.
type Attempt struct {
	Number         int
	Generation     GenerationResult
	Validation     sqlcheck.Outcome
	ExecutionError string
	RowCount       int
}

// QueryOutcome is the terminal result of processing one question. It is the
// wire-level contract to the presentation layer: constructed once the retry
// loop terminates and immutable thereafter.
type QueryOutcome struct {
	Success            bool             `json:"success"`
	SQL                string           `json:"sql"`
	Reasoning          string           `json:"reasoning"`
	Explanation        string           `json:"explanation"`
	Results            []map[string]any `json:"results"`
	Error              string           `json:"error,omitempty"`
	Attempts           int              `json:"attempts"`
	AttemptLog         []Attempt        `json:"-"`
	Skill              skill.Skill      `json:"skill"`
	NaturalResponse    string           `json:"natural_response"`
	NeedsClarification bool             `json:"needs_clarification"`
	DataSources        []string         `json:"data_sources,omitempty"`
	MetadataSummary    string           `json:"metadata_summary,omitempty"`
}

// Config holds the configuration for the Executor.
type Config struct {
	Logger     *slog.Logger
	LLM        LLMClient
	Querier    Querier
	Cache      *ResultCache // optional
	MaxRetries int          // total generation attempts per question (default 3)
	NLGEnabled bool         // render answers with the LLM; template fallback otherwise
	NLGMaxRows int          // rows included in the rendering prompt (default 10)
}
