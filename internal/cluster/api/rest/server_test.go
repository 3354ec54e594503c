package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/internal/cluster/core"
	"github.com/qstream-io/qstream/internal/cluster/service"
	"github.com/qstream-io/qstream/pkg/query"
)

type mockControl struct {
	jobs      map[string]*core.Job
	locations map[string]*query.Location
	cancelled []uuid.UUID
	lookupErr error
}

func newMockControl() *mockControl {
	return &mockControl{
		jobs:      make(map[string]*core.Job),
		locations: make(map[string]*query.Location),
	}
}

func (m *mockControl) GetJob(id uuid.UUID) (*core.Job, error) {
	job, exists := m.jobs[id.String()]
	if !exists {
		return nil, service.ErrJobNotFound
	}
	return job, nil
}

func (m *mockControl) GetJobs(filter core.JobFilter) ([]*core.Job, int, error) {
	jobs := make([]*core.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, len(jobs), nil
}

func (m *mockControl) Lookup(ctx context.Context, jobID uuid.UUID, stateName string) (*query.Location, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	location, exists := m.locations[jobID.String()+"/"+stateName]
	if !exists {
		return nil, &query.UnavailableError{Reason: "not assigned"}
	}
	return location, nil
}

func (m *mockControl) CancelJob(id uuid.UUID) error {
	job, exists := m.jobs[id.String()]
	if !exists {
		return service.ErrJobNotFound
	}
	job.Status = core.JobStatusCancelled
	m.cancelled = append(m.cancelled, id)
	return nil
}

func newTestMux(control Control) *http.ServeMux {
	api := NewAPI(control, newMockLogger())
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return mux
}

func runningJob(id uuid.UUID) *core.Job {
	return &core.Job{
		ID:           id,
		Name:         "counts",
		Status:       core.JobStatusRunning,
		NumKeyGroups: 8,
		StateNames:   []string{"sum"},
		SubmittedAt:  time.Now().UTC(),
	}
}

func TestGetJob(t *testing.T) {
	control := newMockControl()
	jobID := uuid.New()
	control.jobs[jobID.String()] = runningJob(jobID)
	mux := newTestMux(control)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String(), nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp JobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.JobID != jobID.String() {
		t.Errorf("Expected job ID %s, got %s", jobID, resp.JobID)
	}
	if resp.Status != string(core.JobStatusRunning) {
		t.Errorf("Expected RUNNING, got %s", resp.Status)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	mux := newTestMux(newMockControl())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.New().String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetJob_InvalidID(t *testing.T) {
	mux := newTestMux(newMockControl())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGetStateLocation(t *testing.T) {
	control := newMockControl()
	jobID := uuid.New()
	control.jobs[jobID.String()] = runningJob(jobID)
	control.locations[jobID.String()+"/sum"] = &query.Location{
		JobID:        jobID,
		StateName:    "sum",
		NumKeyGroups: 8,
		Addresses:    []string{"a:1", "a:1", "b:2", "b:2", "a:1", "a:1", "b:2", "b:2"},
	}
	mux := newTestMux(control)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String()+"/state/sum/location", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp LocationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.NumKeyGroups != 8 {
		t.Errorf("Expected 8 key groups, got %d", resp.NumKeyGroups)
	}
	if len(resp.Addresses) != 8 {
		t.Errorf("Expected 8 addresses, got %d", len(resp.Addresses))
	}
}

func TestGetStateLocation_UnassignedIs503(t *testing.T) {
	control := newMockControl()
	jobID := uuid.New()
	control.jobs[jobID.String()] = runningJob(jobID)
	mux := newTestMux(control)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String()+"/state/sum/location", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestGetStateLocation_TerminalJobIs410(t *testing.T) {
	control := newMockControl()
	jobID := uuid.New()
	job := runningJob(jobID)
	job.Status = core.JobStatusCancelled
	control.jobs[jobID.String()] = job
	mux := newTestMux(control)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String()+"/state/sum/location", nil))

	if w.Code != http.StatusGone {
		t.Errorf("Expected status 410, got %d", w.Code)
	}
}

func TestCancelJob(t *testing.T) {
	control := newMockControl()
	jobID := uuid.New()
	control.jobs[jobID.String()] = runningJob(jobID)
	mux := newTestMux(control)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs/"+jobID.String()+"/cancel", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp CancelJobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != string(core.JobStatusCancelled) {
		t.Errorf("Expected CANCELLED, got %s", resp.Status)
	}
	if len(control.cancelled) != 1 {
		t.Errorf("Expected one cancellation, got %d", len(control.cancelled))
	}
}

func TestListJobs_StatusFilter(t *testing.T) {
	control := newMockControl()
	run := uuid.New()
	control.jobs[run.String()] = runningJob(run)
	failedID := uuid.New()
	failed := runningJob(failedID)
	failed.Status = core.JobStatusFailed
	control.jobs[failedID.String()] = failed
	mux := newTestMux(control)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs?status=FAILED", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp ListJobsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("Expected total 1, got %d", resp.Total)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].JobID != failedID.String() {
		t.Errorf("Expected only the failed job, got %+v", resp.Jobs)
	}
}
