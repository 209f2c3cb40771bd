package imagepulse

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const contentTypeHeader = "Content-Type"

// maxEventBody caps ingestion payload size; reports are tiny.
const maxEventBody = 4096

// Server exposes the HTTP surface: health, metric reporting, event
// ingestion and the pull job API.
type Server struct {
	addr     string
	store    *Store
	recorder *Recorder
	reporter *Reporter
}

// NewServer creates a server around an already-opened store.
func NewServer(addr string, store *Store) *Server {
	return &Server{
		addr:     addr,
		store:    store,
		recorder: NewRecorder(store),
		reporter: NewReporter(store),
	}
}

// Router builds the HTTP handler with logging and panic recovery
// middleware applied.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.HandleFunc("/metrics", s.metricsHandler).Methods("GET")
	router.HandleFunc("/metrics/recent", s.recentMetricsHandler).Methods("GET")
	router.HandleFunc("/discovery", s.discoveryHandler).Methods("GET")
	router.HandleFunc("/events", s.eventsHandler).Methods("POST")
	router.HandleFunc("/jobs", s.createJobHandler).Methods("POST")
	router.HandleFunc("/jobs", s.listJobsHandler).Methods("GET")
	router.HandleFunc("/jobs/{id}", s.getJobHandler).Methods("GET")
	router.HandleFunc("/jobs/{id}/metrics", s.jobMetricsHandler).Methods("GET")
	router.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	return handlers.RecoveryHandler()(
		handlers.LoggingHandler(log.StandardLogger().Writer(), router))
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	log.Infof("Listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.Router())
}

// healthHandler reports store availability. Any store failure becomes a
// 503; this endpoint never propagates an error.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !s.store.HealthCheck(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// metricsHandler returns per-image aggregates, optionally filtered by
// the image query parameter.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := s.reporter.Report(r.Context(), r.URL.Query().Get("image"))
	if err != nil {
		log.WithError(err).Error("failed to build metric report")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// discoveryHandler returns the Zabbix low-level-discovery payload.
func (s *Server) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := s.reporter.Discovery(r.Context())
	if err != nil {
		log.WithError(err).Error("failed to build discovery payload")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// eventsHandler ingests one pull event report.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	var raw RawReport
	body := http.MaxBytesReader(w, r.Body, maxEventBody)
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		writeJSONError(w, "body", http.StatusBadRequest)
		return
	}

	ev, err := s.recorder.Ingest(r.Context(), raw)
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSONError(w, verr.Field, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.WithError(err).WithField("image", raw.Image).Error("failed to record event")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, EventResponse{
		Image:   ev.Image,
		Outcome: string(ev.Outcome),
		Status:  "recorded",
	})
}

// createJobHandler enqueues a pull job for the worker.
func (s *Server) createJobHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Image string `json:"image"`
	}
	body := http.MaxBytesReader(w, r.Body, maxEventBody)
	if err := json.NewDecoder(body).Decode(&input); err != nil {
		writeJSONError(w, "body", http.StatusBadRequest)
		return
	}

	image, err := ValidateImageName(input.Image)
	if err != nil {
		writeJSONError(w, "image", http.StatusBadRequest)
		return
	}

	id, err := s.store.InsertJob(r.Context(), image)
	if err != nil {
		log.WithError(err).WithField("image", image).Error("failed to enqueue job")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, JobResponse{ID: id, Image: image, Status: string(JobQueued)})
}

// listJobsHandler returns every job, newest first.
func (s *Server) listJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		log.WithError(err).Error("failed to list jobs")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}

	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobResponse(job))
	}
	writeJSON(w, http.StatusOK, out)
}

// getJobHandler returns one job by id.
func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.store.GetJob(r.Context(), id)
	if err == ErrJobNotFound {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.WithError(err).WithField("job", id).Error("failed to get job")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(*job))
}

// jobMetricsHandler returns the metrics recorded for one job.
func (s *Server) jobMetricsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	metrics, err := s.store.JobMetrics(r.Context(), id)
	if err != nil {
		log.WithError(err).WithField("job", id).Error("failed to get job metrics")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobMetricResponses(metrics))
}

// recentMetricsHandler returns the most recent job metric rows.
func (s *Server) recentMetricsHandler(w http.ResponseWriter, r *http.Request) {
	limit := int64(200)
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 1 {
			writeJSONError(w, "limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	metrics, err := s.store.RecentMetrics(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("failed to get recent metrics")
		errorsTotalMetric.Inc()
		writeJSONError(w, "storage failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobMetricResponses(metrics))
}

func jobResponse(job Job) JobResponse {
	return JobResponse{
		ID:     job.ID,
		Image:  job.Image,
		Status: string(job.Status),
		Result: job.Result,
		Error:  job.ErrorDetail,
	}
}

func jobMetricResponses(metrics []JobMetric) []JobMetricResponse {
	out := make([]JobMetricResponse, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, JobMetricResponse{
			JobID:     m.JobID,
			Key:       m.Key,
			Value:     m.Value,
			Unit:      m.Unit,
			Labels:    m.Labels,
			CreatedAt: formatTime(m.CreatedAt),
		})
	}
	return out
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set(contentTypeHeader, "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("failed to write JSON response")
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
