package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/internal/cluster/core"
	"github.com/qstream-io/qstream/internal/cluster/service"
	"github.com/qstream-io/qstream/internal/shared/config"
	"github.com/qstream-io/qstream/internal/shared/logging"
	"github.com/qstream-io/qstream/pkg/query"
)

// Control is the slice of the cluster harness the REST API needs.
type Control interface {
	GetJob(id uuid.UUID) (*core.Job, error)
	GetJobs(filter core.JobFilter) ([]*core.Job, int, error)
	Lookup(ctx context.Context, jobID uuid.UUID, stateName string) (*query.Location, error)
	CancelJob(id uuid.UUID) error
}

type API struct {
	control Control
	logger  logging.Logger
}

func NewAPI(control Control, logger logging.Logger) *API {
	return &API{control: control, logger: logger}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs", a.listJobs)
	mux.HandleFunc("GET /api/jobs/{id}", a.getJob)
	mux.HandleFunc("GET /api/jobs/{id}/state/{name}/location", a.getStateLocation)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", a.cancelJob)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.parseJobID(w, r)
	if !ok {
		return
	}

	job, err := a.control.GetJob(jobID)
	if errors.Is(err, service.ErrJobNotFound) {
		a.respondError(w, http.StatusNotFound, "job not found", "")
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, "loading job failed", err.Error())
		return
	}

	a.respondJSON(w, http.StatusOK, toJobResponse(job))
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	filter := core.JobFilter{Limit: 10}
	if statusParam := params.Get("status"); statusParam != "" {
		status := core.JobStatus(statusParam)
		filter.Status = &status
	}
	if limitParam := params.Get("limit"); limitParam != "" {
		if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetParam := params.Get("offset"); offsetParam != "" {
		if offset, err := strconv.Atoi(offsetParam); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	jobs, total, err := a.control.GetJobs(filter)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, "listing jobs failed", err.Error())
		return
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, toJobSummary(job))
	}

	var nextOffset *int
	if end := filter.Offset + len(jobs); end < total {
		nextOffset = &end
	}

	a.respondJSON(w, http.StatusOK, ListJobsResponse{
		Jobs:       summaries,
		Total:      total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		NextOffset: nextOffset,
	})
}

// getStateLocation answers the client's location resolution. A 404 or 503
// is a transient answer and clients keep retrying; 410 marks a job that can
// never be queried again.
func (a *API) getStateLocation(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.parseJobID(w, r)
	if !ok {
		return
	}
	stateName := r.PathValue("name")
	if stateName == "" {
		a.respondError(w, http.StatusBadRequest, "state name required", "")
		return
	}

	job, err := a.control.GetJob(jobID)
	if errors.Is(err, service.ErrJobNotFound) {
		a.respondError(w, http.StatusNotFound, "job not found", "")
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, "loading job failed", err.Error())
		return
	}
	if job.Status.Terminal() {
		a.respondError(w, http.StatusGone, "job is no longer queryable", string(job.Status))
		return
	}

	location, err := a.control.Lookup(r.Context(), jobID, stateName)
	if err != nil {
		var unavailable *query.UnavailableError
		if errors.As(err, &unavailable) {
			a.respondError(w, http.StatusServiceUnavailable, "location not available", unavailable.Reason)
			return
		}
		a.respondError(w, http.StatusInternalServerError, "location lookup failed", err.Error())
		return
	}

	a.respondJSON(w, http.StatusOK, toLocationResponse(location))
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.parseJobID(w, r)
	if !ok {
		return
	}

	err := a.control.CancelJob(jobID)
	if errors.Is(err, service.ErrJobNotFound) {
		a.respondError(w, http.StatusNotFound, "job not found", "")
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, "cancelling job failed", err.Error())
		return
	}

	job, err := a.control.GetJob(jobID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, "loading job failed", err.Error())
		return
	}
	a.respondJSON(w, http.StatusOK, CancelJobResponse{JobID: jobID.String(), Status: string(job.Status)})
}

func (a *API) parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid job ID", err.Error())
		return uuid.Nil, false
	}
	return jobID, true
}

func (a *API) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (a *API) respondError(w http.ResponseWriter, statusCode int, error string, message string) {
	resp := ErrorResponse{
		Error:   error,
		Message: message,
		Code:    statusCode,
	}
	a.respondJSON(w, statusCode, resp)
}

func NewServer(cfg config.RESTConfig, control Control, logger logging.Logger) *http.Server {
	api := NewAPI(control, logger)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	handler := ChainMiddleware(
		mux,
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
