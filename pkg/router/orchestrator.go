package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harperhq/clientiq/pkg/metrics"
	"github.com/harperhq/clientiq/pkg/pipeline"
)

// QueryExecutor runs the SQL pipeline for one question.
type QueryExecutor interface {
	ProcessQuery(ctx context.Context, question string, companyID int64, history []pipeline.ConversationTurn) pipeline.QueryOutcome
}

// DocumentAgent answers questions from a company's documents.
type DocumentAgent interface {
	Answer(ctx context.Context, question string, companyID int64, terms []string) (string, error)
}

// Memory holds per-session conversation state.
type Memory interface {
	Turns(sessionID string) []pipeline.ConversationTurn
	Append(sessionID string, turn pipeline.ConversationTurn)
	Routes(sessionID string) []Record
	AppendRoute(sessionID string, rec Record)
}

// Response is the orchestrator's answer to one question.
type Response struct {
	Answer  string                 `json:"answer"`
	Route   Route                  `json:"route"`
	Outcome *pipeline.QueryOutcome `json:"outcome,omitempty"`
}

// Orchestrator wires the supervisor to the agents and session memory. It
// handles one question end to end; concurrent calls for different
// sessions are safe.
type Orchestrator struct {
	supervisor *Supervisor
	merger     *Merger
	executor   QueryExecutor
	docs       DocumentAgent
	memory     Memory
	log        *slog.Logger
}

// OrchestratorConfig holds the orchestrator's collaborators.
type OrchestratorConfig struct {
	Logger   *slog.Logger
	LLM      LLMClient
	Executor QueryExecutor
	Docs     DocumentAgent
	Memory   Memory
}

// NewOrchestrator creates an Orchestrator from the given configuration.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("query executor is required")
	}
	if cfg.Memory == nil {
		return nil, fmt.Errorf("session memory is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Orchestrator{
		supervisor: NewSupervisor(cfg.LLM, log),
		merger:     NewMerger(cfg.LLM, log),
		executor:   cfg.Executor,
		docs:       cfg.Docs,
		memory:     cfg.Memory,
		log:        log,
	}, nil
}

// Answer routes and answers one question for a session. It never returns
// an error to the caller: every failure path degrades to an answer that
// explains itself.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, question string, companyID int64) Response {
	decision := o.supervisor.Route(ctx, question, o.memory.Routes(sessionID))
	o.memory.AppendRoute(sessionID, Record{Question: question, Route: decision.Route, Reasoning: decision.Reasoning})
	metrics.QuestionsTotal.WithLabelValues(string(decision.Route)).Inc()

	resp := o.dispatch(ctx, sessionID, question, companyID, decision)

	o.memory.Append(sessionID, pipeline.ConversationTurn{Question: question, Answer: resp.Answer})
	return resp
}

func (o *Orchestrator) dispatch(ctx context.Context, sessionID, question string, companyID int64, decision Decision) Response {
	history := o.memory.Turns(sessionID)

	switch decision.Route {
	case RouteConversational:
		answer := decision.ConversationalReply
		if answer == "" {
			answer = "Hello! Ask me about this client's emails, phone calls, messages, documents, or company details."
		}
		return Response{Answer: answer, Route: RouteConversational}

	case RouteDocumentSearch:
		if o.docs == nil {
			break // fall through to the SQL path
		}
		answer, err := o.docs.Answer(ctx, question, companyID, decision.SearchTerms)
		if err != nil {
			o.log.Warn("document search failed, falling back to SQL", "error", err)
			break
		}
		return Response{Answer: answer, Route: RouteDocumentSearch}

	case RouteHybrid:
		if o.docs == nil {
			break
		}
		return o.hybrid(ctx, question, companyID, history, decision.SearchTerms)
	}

	outcome := o.executor.ProcessQuery(ctx, question, companyID, history)
	return Response{Answer: outcome.NaturalResponse, Route: RouteSQLOnly, Outcome: &outcome}
}

// hybrid runs the SQL pipeline and document search concurrently and
// merges their answers.
func (o *Orchestrator) hybrid(ctx context.Context, question string, companyID int64, history []pipeline.ConversationTurn, terms []string) Response {
	var (
		wg        sync.WaitGroup
		outcome   pipeline.QueryOutcome
		docAnswer string
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		outcome = o.executor.ProcessQuery(ctx, question, companyID, history)
	}()
	go func() {
		defer wg.Done()
		answer, err := o.docs.Answer(ctx, question, companyID, terms)
		if err != nil {
			o.log.Warn("document half of hybrid query failed", "error", err)
			return
		}
		docAnswer = answer
	}()
	wg.Wait()

	answer := o.merger.Merge(ctx, question, outcome.NaturalResponse, docAnswer)
	return Response{Answer: answer, Route: RouteHybrid, Outcome: &outcome}
}
