package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// StageWorkerBody is the optional request body of a stage worker call.
type StageWorkerBody struct {
	ConcurrencyDocs int `json:"concurrency_docs"`
}

// PipelineStats reports per-stage backlog counts.
type PipelineStats struct {
	Stages map[string]domain.StageBacklog `json:"stages"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Returns the readiness status of the API (checks database and lock backend)
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "A dependency is unavailable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable: "+err.Error())
			return
		}
	}
	// Redis is optional infrastructure; its loss degrades locking but must
	// not flip readiness.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Pipeline endpoints

// handleTick godoc
// @Summary      Run one orchestrator tick
// @Description  Counts per-stage backlogs and dispatches at most one stage worker. Idempotent; safe to call from overlapping cron schedules.
// @Tags         Pipeline
// @Produce      json
// @Success      200  {object}  driving.TickResult
// @Failure      500  {object}  ErrorResponse  "Backlog counting failed"
// @Security     InternalKey
// @Router       /internal/pipeline/tick [post]
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.RunTick(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePipelineStats godoc
// @Summary      Pipeline backlog stats
// @Description  Returns ready and stale job counts per pipeline stage
// @Tags         Pipeline
// @Produce      json
// @Success      200  {object}  PipelineStats
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/pipeline/stats [get]
func (s *Server) handlePipelineStats(w http.ResponseWriter, r *http.Request) {
	stats := PipelineStats{Stages: make(map[string]domain.StageBacklog, len(domain.StageOrder))}
	for _, stage := range domain.StageOrder {
		backlog, err := s.jobStore.Backlog(r.Context(), stage)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		stats.Stages[string(stage)] = backlog
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListJobs godoc
// @Summary      List pipeline jobs
// @Description  Returns jobs filtered by document, stage and status
// @Tags         Pipeline
// @Produce      json
// @Param        document_id  query  string  false  "Filter by document ID"
// @Param        stage        query  string  false  "Filter by stage (chunk, embed, enrich)"
// @Param        status       query  string  false  "Filter by status (pending, processing, done, failed)"
// @Param        limit        query  int     false  "Maximum results (default 100)"
// @Param        offset       query  int     false  "Results offset"
// @Success      200  {array}   domain.PipelineJob
// @Failure      400  {object}  ErrorResponse  "Unknown stage"
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/pipeline/jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := driven.JobFilter{
		DocumentID: q.Get("document_id"),
		Status:     domain.JobStatus(q.Get("status")),
		Limit:      queryInt(q.Get("limit"), 0),
		Offset:     queryInt(q.Get("offset"), 0),
	}
	if raw := q.Get("stage"); raw != "" {
		stage, err := domain.ParseJobType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown stage: "+raw)
			return
		}
		filter.Type = stage
	}

	jobs, err := s.jobStore.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleStageWorker godoc
// @Summary      Run one stage worker pass
// @Description  Claims and processes up to concurrency_docs jobs of the given stage. Called by the orchestrator tick; safe to call manually for replays.
// @Tags         Pipeline
// @Accept       json
// @Produce      json
// @Param        stage    path  string           true   "Pipeline stage (chunk, embed, enrich)"
// @Param        request  body  StageWorkerBody  false  "Worker options"
// @Success      200  {object}  driving.StageRunResult
// @Failure      400  {object}  ErrorResponse  "Unknown stage"
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/workers/{stage} [post]
func (s *Server) handleStageWorker(w http.ResponseWriter, r *http.Request) {
	stage, err := domain.ParseJobType(r.PathValue("stage"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown stage: "+r.PathValue("stage"))
		return
	}

	// Body is optional: a bare POST runs with the default concurrency.
	var body StageWorkerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.stageRunner.Run(r.Context(), stage, body.ConcurrencyDocs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Ingestion endpoints

// handleRegisterSource godoc
// @Summary      Register an extraction pass
// @Description  Persists one source record awaiting merge. A duplicate source key is rejected.
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Param        request  body  domain.SourceRecord  true  "Source record"
// @Success      201  {object}  StatusResponse
// @Failure      400  {object}  ErrorResponse  "Invalid source record"
// @Failure      409  {object}  ErrorResponse  "Source key already registered"
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/sources [post]
func (s *Server) handleRegisterSource(w http.ResponseWriter, r *http.Request) {
	var rec domain.SourceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.ingest.RegisterSource(r.Context(), &rec); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "source key already registered")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// handleMerge godoc
// @Summary      Run one merge pass
// @Description  Matches unconsumed sources into pairs, merges them into canonical documents and promotes stale unmatched sources.
// @Tags         Ingestion
// @Produce      json
// @Success      200  {object}  driving.MergeReport
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/merge [post]
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	report, err := s.ingest.MergeBacklog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Document endpoints

// handleListDocuments godoc
// @Summary      List documents
// @Description  Returns canonical documents, newest first
// @Tags         Documents
// @Produce      json
// @Param        limit   query  int  false  "Maximum results (default 50)"
// @Param        offset  query  int  false  "Results offset"
// @Success      200  {array}   domain.LegalDocument
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/documents [get]
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := s.documents.List(r.Context(), queryInt(q.Get("limit"), 0), queryInt(q.Get("offset"), 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleGetDocument godoc
// @Summary      Get a document
// @Description  Returns one canonical document by ID
// @Tags         Documents
// @Produce      json
// @Param        id  path  string  true  "Document ID"
// @Success      200  {object}  domain.LegalDocument
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/documents/{id} [get]
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleAuditDocument godoc
// @Summary      Audit a document's chunk set
// @Description  Recomputes integrity metrics (coverage, gaps, overlaps, duplicates) for a document's stored chunks
// @Tags         Documents
// @Produce      json
// @Param        id  path  string  true  "Document ID"
// @Success      200  {object}  domain.ChunkAuditMetrics
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Failure      500  {object}  ErrorResponse
// @Security     InternalKey
// @Router       /internal/documents/{id}/audit [get]
func (s *Server) handleAuditDocument(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.ingest.AuditDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// Helper functions

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
