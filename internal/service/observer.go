package service

import (
	"time"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// Stage names a step of the answer pipeline.
type Stage string

const (
	StageQueryGuard    Stage = "query_guard"
	StageRetrieve      Stage = "retrieve"
	StageResolve       Stage = "resolve"
	StageGenerate      Stage = "generate"
	StageResponseGuard Stage = "response_guard"
)

// Observer receives pipeline timings and outcomes. Implementations must be
// safe for concurrent use.
type Observer interface {
	// ObserveStage is called once per executed stage. err is nil on success.
	ObserveStage(stage Stage, elapsed time.Duration, err error)
	// ObserveResponse is called for every successful answer, including
	// blocked and generic ones.
	ObserveResponse(res *knowledge.ResponseResult)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(Stage, time.Duration, error)   {}
func (nopObserver) ObserveResponse(*knowledge.ResponseResult) {}
