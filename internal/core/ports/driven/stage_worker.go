package driven

import (
	"context"
	"encoding/json"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// StageWorkerRequest is the body of an outbound worker dispatch.
type StageWorkerRequest struct {
	// ConcurrencyDocs hints how many documents the worker should claim.
	ConcurrencyDocs int `json:"concurrency_docs"`
}

// StageWorkerClient dispatches one stage-advance call to a stage worker.
// The worker owns claiming, leasing and processing; the response body is
// opaque JSON forwarded verbatim in the tick result.
type StageWorkerClient interface {
	Trigger(ctx context.Context, stage domain.JobType, req StageWorkerRequest) (json.RawMessage, error)
}
