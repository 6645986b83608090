package driving

import (
	"context"
	"encoding/json"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// TickResult is the structured outcome of one orchestrator invocation.
type TickResult struct {
	ChunkPending  int64 `json:"chunk_pending"`
	EmbedPending  int64 `json:"embed_pending"`
	EnrichPending int64 `json:"enrich_pending"`

	// StageTriggered is "idle" or the stage dispatched this tick.
	StageTriggered string `json:"stage_triggered"`

	// WorkerResult is the worker's raw response, or a {"error": ...} object
	// when the dispatch itself failed. The tick still succeeds either way.
	WorkerResult json.RawMessage `json:"worker_result,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// PipelineOrchestrator advances the ingestion pipeline by at most one
// stage-dispatch per invocation.
type PipelineOrchestrator interface {
	RunTick(ctx context.Context) (*TickResult, error)
}

// StageRunResult reports what one stage worker invocation did.
type StageRunResult struct {
	Stage     domain.JobType `json:"stage"`
	Claimed   int            `json:"claimed"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`

	// Abandoned counts claims voluntarily given up because the lease was
	// nearly spent; they recover via lease expiry.
	Abandoned int `json:"abandoned"`
}

// StageRunner executes claimed jobs for each pipeline stage.
type StageRunner interface {
	Run(ctx context.Context, stage domain.JobType, concurrencyDocs int) (*StageRunResult, error)
}
