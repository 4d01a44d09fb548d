package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/llm"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/retrieval"
)

// singleChunkPenalty scales confidence when only one passage supports the answer.
const singleChunkPenalty = 0.8

// Answer runs the full pipeline for one query.
//
// A query that asks for advice is answered with the safe template before
// any retrieval, and a query with no relevant passages gets the generic
// fallback; both are successful results with zero confidence. Index,
// embedding and LLM failures are returned as errors wrapping the matching
// knowledge sentinel and are never retried here. If ctx is done the
// pipeline stops at the next stage boundary.
func (s *AnswerService) Answer(ctx context.Context, req Request) (*knowledge.ResponseResult, error) {
	start := time.Now()

	query, err := s.validate(req.Query)
	if err != nil {
		return nil, err
	}

	res := &knowledge.ResponseResult{
		Query:     query,
		SessionID: req.SessionID,
		Citations: []knowledge.Citation{},
	}

	stageStart := time.Now()
	safe, violation := s.guard.CheckQuery(query)
	s.observer.ObserveStage(StageQueryGuard, time.Since(stageStart), nil)
	if !safe {
		s.logger.Warn("query blocked by guardrail",
			"session_id", req.SessionID,
			"violation_type", violation.Type.String(),
			"pattern", violation.MatchedPattern,
		)
		s.blocked(res, query, violation)
		return s.finish(res, start), nil
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	stageStart = time.Now()
	retrieved, err := s.retrieve(ctx, query, req.Filters)
	s.observer.ObserveStage(StageRetrieve, time.Since(stageStart), err)
	if err != nil {
		return nil, err
	}
	res.RetrievalTimeMs = retrieved.RetrievalTimeMs
	if len(retrieved.Candidates) == 0 {
		s.logger.Info("no passages above relevance floor",
			"session_id", req.SessionID,
			"floor", s.cfg.SimilarityFloor,
		)
		s.generic(res, query)
		return s.finish(res, start), nil
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	candidates := retrieved.Candidates
	stageStart = time.Now()
	resolution := s.resolver.Resolve(query, candidates)
	s.observer.ObserveStage(StageResolve, time.Since(stageStart), nil)
	res.Category = resolution.Category
	res.FallbackTier = resolution.Tier
	res.Citations = resolution.Citations
	res.ChunksRetrieved = len(candidates)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	prompt := BuildPrompt(query, retrieval.ContextWindow(candidates, s.cfg.ContextMaxTokens), resolution.Citations)
	stageStart = time.Now()
	gen, answer, err := s.generate(ctx, prompt)
	elapsed := time.Since(stageStart)
	s.observer.ObserveStage(StageGenerate, elapsed, err)
	if err != nil {
		return nil, err
	}
	res.GenerationTimeMs = elapsed.Milliseconds()
	res.PromptTokens = gen.PromptTokens
	res.CompletionTokens = gen.CompletionTokens
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	stageStart = time.Now()
	if ok, violations := s.guard.CheckResponse(answer); !ok {
		s.logger.Warn("generated answer violates guardrail",
			"session_id", req.SessionID,
			"violations", len(violations),
		)
		answer = s.guard.Sanitize(answer, violations)
		res.Sanitized = true
		res.ViolationCount = len(violations)
	}
	s.observer.ObserveStage(StageResponseGuard, time.Since(stageStart), nil)

	res.AnswerText = answer
	res.ConfidenceScore = Confidence(res.FallbackTier, res.ChunksRetrieved)
	return s.finish(res, start), nil
}

// Confidence scores an answer from its fallback tier and the number of
// passages supporting it.
func Confidence(tier knowledge.FallbackTier, chunks int) float64 {
	if chunks <= 0 {
		return 0
	}
	c := tier.BaseConfidence()
	if chunks < 2 {
		c *= singleChunkPenalty
	}
	return c
}

func (s *AnswerService) validate(query string) (string, error) {
	query = retrieval.NormalizeQuery(query)
	if query == "" {
		return "", knowledge.ErrEmptyQuery
	}
	if n := utf8.RuneCountInString(query); n > s.cfg.MaxQueryLength {
		return "", fmt.Errorf("%w: %d characters, limit is %d", knowledge.ErrQueryTooLong, n, s.cfg.MaxQueryLength)
	}
	return query, nil
}

func (s *AnswerService) blocked(res *knowledge.ResponseResult, query string, v *knowledge.Violation) {
	res.AnswerText = s.guard.SafeResponseTemplate()
	res.BlockedByGuardrail = true
	res.Violation = v
	res.FallbackTier = knowledge.TierGeneric
	res.Category = s.resolver.Category(query)
}

func (s *AnswerService) generic(res *knowledge.ResponseResult, query string) {
	res.AnswerText = GenericFallbackText
	res.FallbackTier = knowledge.TierGeneric
	res.Category = s.resolver.Category(query)
}

func (s *AnswerService) finish(res *knowledge.ResponseResult, start time.Time) *knowledge.ResponseResult {
	res.TotalTimeMs = time.Since(start).Milliseconds()
	s.observer.ObserveResponse(res)
	s.logger.Info("answered query",
		"session_id", res.SessionID,
		"fallback_tier", res.FallbackTier.String(),
		"confidence", res.ConfidenceScore,
		"chunks", res.ChunksRetrieved,
		"blocked", res.BlockedByGuardrail,
		"sanitized", res.Sanitized,
		"total_ms", res.TotalTimeMs,
	)
	return res
}

func (s *AnswerService) retrieve(ctx context.Context, query string, filters map[string]string) (*knowledge.RetrievalResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	retrieved, err := s.retriever.Retrieve(callCtx, query, retrieval.Options{
		TopK:            s.cfg.TopK,
		SimilarityFloor: s.cfg.SimilarityFloor,
		Filters:         filters,
	})
	if err != nil {
		if timedOut(ctx, err) && !errors.Is(err, knowledge.ErrIndexUnavailable) && !errors.Is(err, knowledge.ErrEmbedding) {
			err = fmt.Errorf("%w: no response within %s: %w", knowledge.ErrIndexUnavailable, s.cfg.RequestTimeout, err)
		}
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return retrieved, nil
}

func (s *AnswerService) generate(ctx context.Context, prompt string) (*llm.Generation, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	gen, err := s.llm.Generate(callCtx, prompt, llm.GenerateOptions{
		Model:        s.cfg.Model,
		SystemPrompt: SystemPrompt,
		Temperature:  s.cfg.Temperature,
		MaxTokens:    s.cfg.MaxTokens,
	})
	if err != nil {
		if timedOut(ctx, err) && !isLLMFailure(err) {
			err = fmt.Errorf("%w: no response within %s: %w", knowledge.ErrLLMTimeout, s.cfg.RequestTimeout, err)
		}
		return nil, "", fmt.Errorf("generate: %w", err)
	}

	answer := postProcess(gen.Text)
	if answer == "" {
		return nil, "", fmt.Errorf("generate: %w: empty completion", knowledge.ErrLLMService)
	}
	return gen, answer, nil
}

// timedOut reports whether err is the per-call deadline firing while the
// caller's own context is still live.
func timedOut(parent context.Context, err error) bool {
	return parent.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}

func isLLMFailure(err error) bool {
	return errors.Is(err, knowledge.ErrLLMTimeout) ||
		errors.Is(err, knowledge.ErrLLMRateLimited) ||
		errors.Is(err, knowledge.ErrLLMAuth) ||
		errors.Is(err, knowledge.ErrLLMService)
}

// checkpoint stops the pipeline between stages once the caller gives up.
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("answer abandoned: %w", err)
	}
	return nil
}
