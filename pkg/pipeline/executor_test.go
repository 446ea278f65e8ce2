package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperhq/clientiq/pkg/skill"
)

// mockLLM returns scripted responses in order and records the prompts it
// was called with.
type mockLLM struct {
	responses []string
	errs      []error
	calls     int

	systemPrompts []string
	userPrompts   []string
}

func (m *mockLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.systemPrompts = append(m.systemPrompts, systemPrompt)
	m.userPrompts = append(m.userPrompts, userPrompt)
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", fmt.Errorf("unexpected LLM call %d", i)
}

// mockQuerier returns scripted results in order and records executed SQL.
type mockQuerier struct {
	results []QueryResult
	errs    []error
	calls   int

	executed []string
}

func (m *mockQuerier) Query(ctx context.Context, sql string) (QueryResult, error) {
	m.executed = append(m.executed, sql)
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return QueryResult{}, m.errs[i]
	}
	if i < len(m.results) {
		return m.results[i], nil
	}
	return QueryResult{}, fmt.Errorf("unexpected query call %d", i)
}

func generationJSON(t *testing.T, g GenerationResult) string {
	t.Helper()
	raw, err := json.Marshal(g)
	require.NoError(t, err)
	return string(raw)
}

func newTestExecutor(t *testing.T, llm *mockLLM, querier *mockQuerier) *Executor {
	t.Helper()
	exec, err := New(&Config{
		LLM:        llm,
		Querier:    querier,
		MaxRetries: 3,
		NLGEnabled: false, // deterministic template rendering in tests
	})
	require.NoError(t, err)
	return exec
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(&Config{Querier: &mockQuerier{}})
	require.Error(t, err)

	_, err = New(&Config{LLM: &mockLLM{}})
	require.Error(t, err)
}

func TestProcessQuerySucceedsFirstAttempt(t *testing.T) {
	sql := "SELECT count(*) AS email_count FROM communications.emails_silver WHERE matched_company_id = 29447"
	llm := &mockLLM{responses: []string{
		generationJSON(t, GenerationResult{
			SQL:         sql,
			Reasoning:   "count emails for the tenant",
			Explanation: "Counts all emails for the company.",
		}),
	}}
	querier := &mockQuerier{results: []QueryResult{
		{Columns: []string{"email_count"}, Rows: []map[string]any{{"email_count": int64(42)}}, Count: 1},
	}}

	outcome := newTestExecutor(t, llm, querier).ProcessQuery(context.Background(), "How many emails did we exchange?", 29447, nil)

	assert.True(t, outcome.Success)
	assert.Equal(t, sql, outcome.SQL)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, skill.EmailCommunications, outcome.Skill)
	assert.Empty(t, outcome.Error)
	assert.Equal(t, []string{"Email Communications"}, outcome.DataSources)
	assert.NotEmpty(t, outcome.NaturalResponse)
	require.Equal(t, []string{sql}, querier.executed)

	// The generation call is skill-scoped: its system prompt is the
	// email schema context with the tenant injected.
	require.Len(t, llm.systemPrompts, 1)
	assert.Equal(t, skill.Context(skill.EmailCommunications, 29447), llm.systemPrompts[0])
	assert.Contains(t, llm.userPrompts[0], "How many emails did we exchange?")
	assert.NotContains(t, llm.userPrompts[0], "PREVIOUS ERROR")
}

func TestProcessQueryRetriesOnValidationFailure(t *testing.T) {
	bad := "DELETE FROM communications.emails_silver WHERE matched_company_id = 1"
	good := "SELECT subject FROM communications.emails_silver WHERE matched_company_id = 1"
	llm := &mockLLM{responses: []string{
		generationJSON(t, GenerationResult{SQL: bad}),
		generationJSON(t, GenerationResult{SQL: good}),
	}}
	querier := &mockQuerier{results: []QueryResult{
		{Columns: []string{"subject"}, Rows: []map[string]any{{"subject": "Renewal"}}, Count: 1},
	}}

	outcome := newTestExecutor(t, llm, querier).ProcessQuery(context.Background(), "Show email subjects", 1, nil)

	assert.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.Attempts)
	// The rejected statement never reached the database.
	assert.Equal(t, []string{good}, querier.executed)
	// The second generation call carries the validator's reason verbatim.
	require.Len(t, llm.userPrompts, 2)
	assert.Contains(t, llm.userPrompts[1], "PREVIOUS ERROR")
	assert.Contains(t, llm.userPrompts[1], "validation failed: only SELECT queries are allowed, found: DELETE")
}

func TestProcessQueryRetriesOnExecutionError(t *testing.T) {
	sql1 := "SELECT subjct FROM communications.emails_silver WHERE matched_company_id = 1"
	sql2 := "SELECT subject FROM communications.emails_silver WHERE matched_company_id = 1"
	llm := &mockLLM{responses: []string{
		generationJSON(t, GenerationResult{SQL: sql1}),
		generationJSON(t, GenerationResult{SQL: sql2}),
	}}
	querier := &mockQuerier{
		errs:    []error{fmt.Errorf(`column "subjct" does not exist`)},
		results: []QueryResult{{}, {Columns: []string{"subject"}, Rows: nil, Count: 0}},
	}

	outcome := newTestExecutor(t, llm, querier).ProcessQuery(context.Background(), "Show email subjects", 1, nil)

	assert.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.Attempts)
	// The engine's message reaches the second generation prompt intact.
	assert.Contains(t, llm.userPrompts[1], `column "subjct" does not exist`)
}

func TestProcessQueryZeroRowsIsSuccess(t *testing.T) {
	sql := "SELECT subject FROM communications.emails_silver WHERE matched_company_id = 1 AND sent_date > now()"
	llm := &mockLLM{responses: []string{generationJSON(t, GenerationResult{SQL: sql})}}
	querier := &mockQuerier{results: []QueryResult{{Columns: []string{"subject"}, Count: 0}}}

	outcome := newTestExecutor(t, llm, querier).ProcessQuery(context.Background(), "Any emails from the future?", 1, nil)

	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, outcome.Results)
	assert.Contains(t, outcome.MetadataSummary, "No matching records")
	// Only one LLM call was made: zero rows must not trigger regeneration.
	assert.Equal(t, 1, llm.calls)
}

func TestProcessQueryClarificationShortCircuits(t *testing.T) {
	llm := &mockLLM{responses: []string{
		generationJSON(t, GenerationResult{
			NeedsClarification:    true,
			ClarificationQuestion: "Which channel do you mean: emails, calls, or texts?",
			SQL:                   "SELECT 1", // must be discarded
		}),
	}}
	querier := &mockQuerier{}

	outcome := newTestExecutor(t, llm, querier).ProcessQuery(context.Background(), "show me stuff", 1, nil)

	assert.True(t, outcome.Success)
	assert.True(t, outcome.NeedsClarification)
	assert.Empty(t, outcome.SQL)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Contains(t, outcome.NaturalResponse, "Which channel do you mean: emails, calls, or texts?")
	// Neither the database nor further generation attempts are reached.
	assert.Empty(t, querier.executed)
	assert.Equal(t, 1, llm.calls)
}

func TestProcessQueryExhaustsRetries(t *testing.T) {
	bad := generationJSON(t, GenerationResult{SQL: "DROP TABLE public.companies"})
	llm := &mockLLM{responses: []string{bad, bad, bad}}
	querier := &mockQuerier{}

	outcome := newTestExecutor(t, llm, querier).ProcessQuery(context.Background(), "break things", 1, nil)

	assert.False(t, outcome.Success)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Len(t, outcome.AttemptLog, 3)
	assert.Contains(t, outcome.Error, "validation failed")
	assert.NotEmpty(t, outcome.NaturalResponse)
	assert.Empty(t, querier.executed)
	assert.Equal(t, 3, llm.calls)
}

func TestProcessQueryLLMFailureCountsAsAttempt(t *testing.T) {
	llm := &mockLLM{
		errs: []error{fmt.Errorf("api timeout"), nil},
		responses: []string{
			"",
			generationJSON(t, GenerationResult{SQL: "SELECT company_name FROM public.companies WHERE id = 1"}),
		},
	}
	querier := &mockQuerier{results: []QueryResult{
		{Columns: []string{"company_name"}, Rows: []map[string]any{{"company_name": "Acme"}}, Count: 1},
	}}

	outcome := newTestExecutor(t, llm, querier).ProcessQuery(context.Background(), "company name?", 1, nil)

	assert.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Contains(t, llm.userPrompts[1], "generation failed")
}

func TestProcessQueryUsesResultCache(t *testing.T) {
	sql := "SELECT company_name FROM public.companies WHERE id = 1"
	llm := &mockLLM{responses: []string{generationJSON(t, GenerationResult{SQL: sql})}}
	querier := &mockQuerier{results: []QueryResult{
		{Columns: []string{"company_name"}, Rows: []map[string]any{{"company_name": "Acme"}}, Count: 1},
	}}

	cache := NewResultCache(10, time.Minute)
	defer cache.Stop()

	exec, err := New(&Config{LLM: llm, Querier: querier, Cache: cache})
	require.NoError(t, err)

	first := exec.ProcessQuery(context.Background(), "What is the company name?", 1, nil)
	require.True(t, first.Success)

	// Same question, normalized differently, is served from the cache.
	second := exec.ProcessQuery(context.Background(), "  what is the company NAME?  ", 1, nil)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, 1, llm.calls)
	assert.Len(t, querier.executed, 1)

	// A different tenant misses.
	third := exec.ProcessQuery(context.Background(), "What is the company name?", 2, nil)
	assert.False(t, third.Success) // no scripted responses left
	assert.Greater(t, llm.calls, 1)
}
