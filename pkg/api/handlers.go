// Package api exposes graph construction and clustering over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/mortality-clustering-service/pkg/analysis"
	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/metrics"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
	"github.com/gilchrisn/mortality-clustering-service/pkg/parser"
	"github.com/gilchrisn/mortality-clustering-service/pkg/pipeline"
	"github.com/gilchrisn/mortality-clustering-service/pkg/service"
	"github.com/gilchrisn/mortality-clustering-service/pkg/similarity"
)

// Version is reported by the health check
const Version = "1.0.0"

const maxBodyBytes = 32 << 20

// Handlers contains HTTP request handlers
type Handlers struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	builder  *similarity.Builder
	jobs     *service.JobService
	metrics  *metrics.Registry
	validate *validator.Validate
}

// NewHandlers creates new API handlers. reg may be nil.
func NewHandlers(cfg *config.Config, p *pipeline.Pipeline, jobs *service.JobService, reg *metrics.Registry) *Handlers {
	return &Handlers{
		cfg:      cfg,
		pipeline: p,
		builder:  similarity.NewBuilder(cfg, log.Logger),
		jobs:     jobs,
		metrics:  reg,
		validate: validator.New(),
	}
}

// clusteringQuery holds the query parameters of clustering requests
type clusteringQuery struct {
	Algorithm string `validate:"omitempty,oneof=louvain labelprop"`
}

// GraphResponse is the body of a successful POST /graphs
type GraphResponse struct {
	Summary analysis.GraphSummary  `json:"summary"`
	Nodes   []models.NodeID        `json:"nodes"`
	Edges   []graph.UndirectedEdge `json:"edges"`
}

// HealthCheck returns server health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   Version,
	}
	WriteSuccessResponse(w, http.StatusOK, "Service is healthy", health)
}

// ListAlgorithms lists available algorithms
func (h *Handlers) ListAlgorithms(w http.ResponseWriter, r *http.Request) {
	algorithms := []map[string]interface{}{
		{
			"name":        config.AlgorithmLouvain,
			"description": "Multi-level modularity optimization (Louvain)",
			"parameters": []map[string]interface{}{
				{"name": "algorithm.max_levels", "type": "integer", "default": h.cfg.MaxLevels(), "description": "Maximum hierarchy levels"},
				{"name": "algorithm.max_passes", "type": "integer", "default": h.cfg.MaxPasses(), "description": "Maximum local-move passes per level"},
				{"name": "algorithm.min_modularity_gain", "type": "number", "default": h.cfg.MinModularityGain(), "description": "Minimum modularity gain to accept a level"},
			},
		},
		{
			"name":        config.AlgorithmLabelProp,
			"description": "Synchronous weighted label propagation",
			"parameters": []map[string]interface{}{
				{"name": "labelprop.max_iterations", "type": "integer", "default": h.cfg.LabelPropMaxIterations(), "description": "Maximum propagation rounds"},
			},
		},
	}
	WriteSuccessResponse(w, http.StatusOK, "Algorithms retrieved successfully", algorithms)
}

// BuildGraph builds one similarity graph over every record in the body
func (h *Handlers) BuildGraph(w http.ResponseWriter, r *http.Request) {
	records, ok := h.readRecords(w, r)
	if !ok {
		return
	}

	start := time.Now()
	g, err := h.builder.Build(r.Context(), records)
	if err != nil {
		log.Error().Err(err).Msg("Graph construction failed")
		WriteErrorResponse(w, http.StatusInternalServerError, "Graph construction failed", err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordGraph("request", g.NumNodes(), g.NumEdges(), time.Since(start))
	}

	response := GraphResponse{
		Summary: analysis.SummarizeGraph(g),
		Nodes:   g.SortedNodes(),
		Edges:   g.Edges(),
	}
	WriteSuccessResponse(w, http.StatusOK, "Graph built successfully", response)
}

// Cluster runs the pipeline synchronously over the table in the body
func (h *Handlers) Cluster(w http.ResponseWriter, r *http.Request) {
	algorithm, ok := h.algorithmParam(w, r)
	if !ok {
		return
	}
	records, ok := h.readRecords(w, r)
	if !ok {
		return
	}

	report, err := h.pipeline.RunWith(r.Context(), records, algorithm)
	if err != nil {
		log.Error().Err(err).Str("algorithm", algorithm).Msg("Clustering failed")
		WriteErrorResponse(w, http.StatusInternalServerError, "Clustering failed", err)
		return
	}

	WriteSuccessResponse(w, http.StatusOK, "Clustering completed successfully", report)
}

// SubmitJob queues a background clustering job
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	algorithm, ok := h.algorithmParam(w, r)
	if !ok {
		return
	}
	records, ok := h.readRecords(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Submit(records, algorithm)
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Failed to submit job", err)
		return
	}

	WriteSuccessResponse(w, http.StatusAccepted, "Job submitted successfully", job)
}

// ListJobs lists all known jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, http.StatusOK, "Jobs retrieved successfully", h.jobs.List())
}

// GetJob returns the status of a job
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.jobs.Get(jobID)
	if err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
		return
	}

	WriteSuccessResponse(w, http.StatusOK, "Job retrieved successfully", job)
}

// GetJobResult returns the full report of a completed job
func (h *Handlers) GetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	report, err := h.jobs.GetResult(jobID)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
	case errors.Is(err, service.ErrResultNotReady):
		WriteErrorResponse(w, http.StatusConflict, "Job has no result yet", err)
	case err != nil:
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to get job result", err)
	default:
		WriteSuccessResponse(w, http.StatusOK, "Job result retrieved successfully", report)
	}
}

// CancelJob cancels a queued or running job
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	if err := h.jobs.Cancel(jobID); err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
		return
	}

	job, _ := h.jobs.Get(jobID)
	WriteSuccessResponse(w, http.StatusOK, "Job cancelled successfully", job)
}

// algorithmParam validates the algorithm query parameter, defaulting to
// the configured algorithm
func (h *Handlers) algorithmParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := clusteringQuery{Algorithm: r.URL.Query().Get("algorithm")}
	if err := h.validate.Struct(query); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		WriteValidationErrorResponse(w, "Invalid query parameters", fields)
		return "", false
	}

	if query.Algorithm == "" {
		return h.cfg.Algorithm(), true
	}
	return query.Algorithm, true
}

// readRecords parses the CSV table in the request body
func (h *Handlers) readRecords(w http.ResponseWriter, r *http.Request) ([]models.Record, bool) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	records, stats, err := parser.ReadRecords(body, log.Logger)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		WriteErrorResponse(w, status, "Invalid CSV body", err)
		return nil, false
	}
	if h.metrics != nil {
		h.metrics.RecordParse(stats.Records, stats.ShortRows, stats.MalformedRows, stats.Invalid)
	}

	log.Debug().
		Int("rows", stats.Rows).
		Int("records", stats.Records).
		Msg("Request table parsed")

	return records, true
}
