// Package pipeline implements the question-to-answer pipeline: skill
// classification, SQL generation, safety validation, execution with
// retry, and natural-language rendering. Every question terminates in a
// QueryOutcome; the pipeline never surfaces an error to its caller.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harperhq/clientiq/pkg/metrics"
	"github.com/harperhq/clientiq/pkg/skill"
	"github.com/harperhq/clientiq/pkg/sqlcheck"
)

// Executor runs the generate-validate-execute loop for one question at a
// time. It is stateless between calls and safe for concurrent use.
type Executor struct {
	cfg       *Config
	log       *slog.Logger
	generator *Generator
	responder *Responder
}

// New creates an Executor from the given configuration.
func New(cfg *Config) (*Executor, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.Querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.NLGMaxRows == 0 {
		cfg.NLGMaxRows = 10
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Executor{
		cfg:       cfg,
		log:       log,
		generator: NewGenerator(cfg.LLM),
		responder: NewResponder(cfg.LLM, log, cfg.NLGEnabled, cfg.NLGMaxRows),
	}, nil
}

// ProcessQuery answers one question against the given company's data. All
// failure modes collapse into the returned QueryOutcome; err is reported
// through Outcome.Error, never as a Go error.
func (e *Executor) ProcessQuery(ctx context.Context, question string, companyID int64, history []ConversationTurn) QueryOutcome {
	sk := skill.Detect(question)
	metrics.SkillDetectionsTotal.WithLabelValues(string(sk)).Inc()

	e.log.Info("processing query", "skill", sk, "companyID", companyID, "question", question)

	if e.cfg.Cache != nil {
		if cached, ok := e.cfg.Cache.Get(companyID, question); ok {
			e.log.Debug("result cache hit", "companyID", companyID)
			return cached
		}
	}

	var (
		attempts []Attempt
		feedback string // failure from the previous attempt, passed verbatim
		lastSQL  string
	)

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		rec := Attempt{Number: attempt}

		gen, err := e.generator.Generate(ctx, question, sk, companyID, history, feedback)
		if err != nil {
			feedback = fmt.Sprintf("generation failed: %v", err)
			e.log.Warn("generation attempt failed", "attempt", attempt, "error", err)
			attempts = append(attempts, rec)
			continue
		}
		rec.Generation = gen
		lastSQL = gen.SQL

		// A clarification request ends the loop immediately. It is a
		// successful outcome: the pipeline did its job by determining
		// the question cannot be answered as asked.
		if gen.NeedsClarification {
			attempts = append(attempts, rec)
			e.log.Info("clarification requested", "attempt", attempt)
			metrics.QueryOutcomesTotal.WithLabelValues("clarification").Inc()
			metrics.QueryAttempts.Observe(float64(attempt))
			return QueryOutcome{
				Success:            true,
				NeedsClarification: true,
				Reasoning:          gen.Reasoning,
				Skill:              sk,
				Attempts:           attempt,
				AttemptLog:         attempts,
				NaturalResponse:    fmt.Sprintf("I need a bit more information to answer your question.\n\n**%s**", gen.ClarificationQuestion),
			}
		}

		if gen.SQL == "" {
			feedback = fmt.Sprintf("generator returned empty SQL; explanation: %s", gen.Explanation)
			attempts = append(attempts, rec)
			continue
		}

		validation := sqlcheck.Validate(gen.SQL)
		rec.Validation = validation
		if !validation.Valid {
			metrics.ValidationRejectionsTotal.Inc()
			feedback = fmt.Sprintf("validation failed: %s", validation.Reason)
			e.log.Warn("generated SQL rejected", "attempt", attempt, "reason", validation.Reason)
			attempts = append(attempts, rec)
			continue
		}

		result, err := e.cfg.Querier.Query(ctx, gen.SQL)
		if err != nil {
			rec.ExecutionError = err.Error()
			feedback = fmt.Sprintf("execution failed: %v", err)
			e.log.Warn("query execution failed", "attempt", attempt, "error", err)
			attempts = append(attempts, rec)
			continue
		}
		rec.RowCount = result.Count
		attempts = append(attempts, rec)

		// Zero rows is a legitimate answer, not a failure.
		return e.succeed(ctx, question, sk, companyID, gen, result, attempts)
	}

	e.log.Warn("retries exhausted", "attempts", e.cfg.MaxRetries, "lastError", feedback)
	metrics.QueryOutcomesTotal.WithLabelValues("exhausted").Inc()
	metrics.QueryAttempts.Observe(float64(e.cfg.MaxRetries))

	return QueryOutcome{
		Success:         false,
		SQL:             lastSQL,
		Error:           feedback,
		Skill:           sk,
		Attempts:        e.cfg.MaxRetries,
		AttemptLog:      attempts,
		NaturalResponse: "I wasn't able to answer that question after several attempts. Try rephrasing it, or narrowing it to a specific channel like emails, phone calls, or text messages.",
	}
}

func (e *Executor) succeed(ctx context.Context, question string, sk skill.Skill, companyID int64, gen GenerationResult, result QueryResult, attempts []Attempt) QueryOutcome {
	sources := extractDataSources(gen.SQL)
	attempt := len(attempts)

	outcome := QueryOutcome{
		Success:         true,
		SQL:             gen.SQL,
		Reasoning:       gen.Reasoning,
		Explanation:     gen.Explanation,
		Results:         result.Rows,
		Skill:           sk,
		Attempts:        attempt,
		AttemptLog:      attempts,
		DataSources:     sources,
		MetadataSummary: summarizeResult(result, sources, attempt),
		NaturalResponse: e.responder.Render(ctx, question, sk, gen.SQL, result),
	}

	metrics.QueryOutcomesTotal.WithLabelValues("success").Inc()
	metrics.QueryAttempts.Observe(float64(attempt))
	e.log.Info("query answered", "skill", sk, "rows", result.Count, "attempts", attempt)

	if e.cfg.Cache != nil {
		e.cfg.Cache.Set(companyID, question, outcome)
	}

	return outcome
}
