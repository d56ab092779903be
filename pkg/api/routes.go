package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the API under /api/v1
func SetupRoutes(router *mux.Router, handlers *Handlers) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/algorithms", handlers.ListAlgorithms).Methods("GET")

	// Synchronous endpoints, CSV table in the request body
	api.HandleFunc("/graphs", handlers.BuildGraph).Methods("POST")
	api.HandleFunc("/clusterings", handlers.Cluster).Methods("POST")

	// Background jobs
	jobs := api.PathPrefix("/jobs").Subrouter()
	jobs.HandleFunc("", handlers.SubmitJob).Methods("POST")
	jobs.HandleFunc("", handlers.ListJobs).Methods("GET")
	jobs.HandleFunc("/{jobId}", handlers.GetJob).Methods("GET")
	jobs.HandleFunc("/{jobId}", handlers.CancelJob).Methods("DELETE")
	jobs.HandleFunc("/{jobId}/result", handlers.GetJobResult).Methods("GET")

	if handlers.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(handlers.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{})).Methods("GET")
	}
}

// NewRouter builds the complete handler: routes, logging, recovery and CORS
func NewRouter(handlers *Handlers, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()
	SetupRoutes(router, handlers)

	router.Use(LoggingMiddleware(handlers.metrics))
	router.Use(RecoveryMiddleware)

	return CORSMiddleware(allowedOrigins)(router)
}
