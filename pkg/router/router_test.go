package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperhq/clientiq/pkg/pipeline"
)

type mockLLM struct {
	responses []string
	errs      []error
	calls     int

	userPrompts []string
}

func (m *mockLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
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

func TestSupervisorRoutes(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`{"route": "document_search", "reasoning": "asks about policy content", "search_terms": ["premium", "deductible"]}`,
	}}

	decision := NewSupervisor(llm, nil).Route(context.Background(), "What does the policy say about the deductible?", nil)

	assert.Equal(t, RouteDocumentSearch, decision.Route)
	assert.Equal(t, []string{"premium", "deductible"}, decision.SearchTerms)
}

func TestSupervisorDefaultsToSQLOnError(t *testing.T) {
	llm := &mockLLM{errs: []error{fmt.Errorf("api down")}}

	decision := NewSupervisor(llm, nil).Route(context.Background(), "How many emails?", nil)

	assert.Equal(t, RouteSQLOnly, decision.Route)
	assert.Contains(t, decision.Reasoning, "routing error")
	assert.Contains(t, decision.Reasoning, "api down")
}

func TestSupervisorDefaultsToSQLOnBadResponse(t *testing.T) {
	for _, response := range []string{"not json at all", `{"route": "teleport"}`} {
		llm := &mockLLM{responses: []string{response}}
		decision := NewSupervisor(llm, nil).Route(context.Background(), "q", nil)
		assert.Equal(t, RouteSQLOnly, decision.Route, "response: %s", response)
		assert.Contains(t, decision.Reasoning, "routing error")
	}
}

func TestSupervisorPromptIncludesPriorRecords(t *testing.T) {
	llm := &mockLLM{responses: []string{`{"route": "sql_only", "reasoning": "follow-up"}`}}
	prior := []Record{{Question: "How many emails?", Route: RouteSQLOnly, Reasoning: "email question"}}

	NewSupervisor(llm, nil).Route(context.Background(), "And calls?", prior)

	require.Len(t, llm.userPrompts, 1)
	assert.Contains(t, llm.userPrompts[0], "How many emails?")
	assert.Contains(t, llm.userPrompts[0], "sql_only")
}

func TestMergeSynthesizes(t *testing.T) {
	llm := &mockLLM{responses: []string{"Combined answer."}}

	out := NewMerger(llm, nil).Merge(context.Background(), "q", "db says 5", "docs say premium is $1,036")

	assert.Equal(t, "Combined answer.", out)
	assert.Contains(t, llm.userPrompts[0], "db says 5")
	assert.Contains(t, llm.userPrompts[0], "docs say premium is $1,036")
}

func TestMergeFallsBackToConcatenation(t *testing.T) {
	llm := &mockLLM{errs: []error{fmt.Errorf("api down")}}

	out := NewMerger(llm, nil).Merge(context.Background(), "q", "db says 5", "docs say X")

	assert.Contains(t, out, "From the database:")
	assert.Contains(t, out, "db says 5")
	assert.Contains(t, out, "From documents:")
	assert.Contains(t, out, "docs say X")
}

// mockExecutor returns a fixed outcome and records calls.
type mockExecutor struct {
	outcome pipeline.QueryOutcome
	calls   int
}

func (m *mockExecutor) ProcessQuery(ctx context.Context, question string, companyID int64, history []pipeline.ConversationTurn) pipeline.QueryOutcome {
	m.calls++
	return m.outcome
}

type mockDocs struct {
	answer string
	err    error
	calls  int
	terms  []string
}

func (m *mockDocs) Answer(ctx context.Context, question string, companyID int64, terms []string) (string, error) {
	m.calls++
	m.terms = terms
	return m.answer, m.err
}

// mapMemory is an in-process Memory for tests.
type mapMemory struct {
	turns  map[string][]pipeline.ConversationTurn
	routes map[string][]Record
}

func newMapMemory() *mapMemory {
	return &mapMemory{
		turns:  map[string][]pipeline.ConversationTurn{},
		routes: map[string][]Record{},
	}
}

func (m *mapMemory) Turns(id string) []pipeline.ConversationTurn { return m.turns[id] }
func (m *mapMemory) Append(id string, t pipeline.ConversationTurn) {
	m.turns[id] = append(m.turns[id], t)
}
func (m *mapMemory) Routes(id string) []Record          { return m.routes[id] }
func (m *mapMemory) AppendRoute(id string, rec Record) { m.routes[id] = append(m.routes[id], rec) }

func newTestOrchestrator(t *testing.T, llm *mockLLM, exec *mockExecutor, docs *mockDocs, mem Memory) *Orchestrator {
	t.Helper()
	var docAgent DocumentAgent
	if docs != nil {
		docAgent = docs
	}
	o, err := NewOrchestrator(OrchestratorConfig{
		LLM:      llm,
		Executor: exec,
		Docs:     docAgent,
		Memory:   mem,
	})
	require.NoError(t, err)
	return o
}

func TestOrchestratorConversational(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`{"route": "conversational", "reasoning": "greeting", "conversational_reply": "Hello! How can I help?"}`,
	}}
	exec := &mockExecutor{}
	mem := newMapMemory()

	resp := newTestOrchestrator(t, llm, exec, nil, mem).Answer(context.Background(), "s1", "hello", 1)

	assert.Equal(t, RouteConversational, resp.Route)
	assert.Equal(t, "Hello! How can I help?", resp.Answer)
	assert.Zero(t, exec.calls)
	// Both the routing decision and the turn were remembered.
	require.Len(t, mem.routes["s1"], 1)
	require.Len(t, mem.turns["s1"], 1)
	assert.Equal(t, "hello", mem.turns["s1"][0].Question)
}

func TestOrchestratorSQLOnly(t *testing.T) {
	llm := &mockLLM{responses: []string{`{"route": "sql_only", "reasoning": "data question"}`}}
	exec := &mockExecutor{outcome: pipeline.QueryOutcome{Success: true, NaturalResponse: "You have 42 emails."}}
	mem := newMapMemory()

	resp := newTestOrchestrator(t, llm, exec, nil, mem).Answer(context.Background(), "s1", "How many emails?", 1)

	assert.Equal(t, RouteSQLOnly, resp.Route)
	assert.Equal(t, "You have 42 emails.", resp.Answer)
	require.NotNil(t, resp.Outcome)
	assert.Equal(t, 1, exec.calls)
}

func TestOrchestratorDocumentSearch(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`{"route": "document_search", "reasoning": "content question", "search_terms": ["premium"]}`,
	}}
	exec := &mockExecutor{}
	docs := &mockDocs{answer: "The premium is $1,036.00."}
	mem := newMapMemory()

	resp := newTestOrchestrator(t, llm, exec, docs, mem).Answer(context.Background(), "s1", "What is the premium?", 1)

	assert.Equal(t, RouteDocumentSearch, resp.Route)
	assert.Equal(t, "The premium is $1,036.00.", resp.Answer)
	assert.Equal(t, []string{"premium"}, docs.terms)
	assert.Zero(t, exec.calls)
}

func TestOrchestratorDocumentFailureFallsBackToSQL(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`{"route": "document_search", "reasoning": "content question"}`,
	}}
	exec := &mockExecutor{outcome: pipeline.QueryOutcome{Success: true, NaturalResponse: "From the database instead."}}
	docs := &mockDocs{err: fmt.Errorf("store down")}
	mem := newMapMemory()

	resp := newTestOrchestrator(t, llm, exec, docs, mem).Answer(context.Background(), "s1", "What is the premium?", 1)

	assert.Equal(t, "From the database instead.", resp.Answer)
	assert.Equal(t, 1, exec.calls)
}

func TestOrchestratorHybridMergesBothHalves(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`{"route": "hybrid", "reasoning": "needs both", "search_terms": ["coverage"]}`,
		"Merged: 3 emails mention the coverage described in the policy.",
	}}
	exec := &mockExecutor{outcome: pipeline.QueryOutcome{Success: true, NaturalResponse: "3 emails mention coverage."}}
	docs := &mockDocs{answer: "The policy describes general liability coverage."}
	mem := newMapMemory()

	resp := newTestOrchestrator(t, llm, exec, docs, mem).Answer(context.Background(), "s1", "Compare emails with the policy coverage", 1)

	assert.Equal(t, RouteHybrid, resp.Route)
	assert.Equal(t, "Merged: 3 emails mention the coverage described in the policy.", resp.Answer)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, 1, docs.calls)
	require.NotNil(t, resp.Outcome)
}
