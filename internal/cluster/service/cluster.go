package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/internal/cluster/core"
	"github.com/qstream-io/qstream/internal/cluster/storage"
	"github.com/qstream-io/qstream/internal/server"
	"github.com/qstream-io/qstream/internal/shared/config"
	"github.com/qstream-io/qstream/internal/shared/logging"
	pkgcore "github.com/qstream-io/qstream/pkg/core"
	"github.com/qstream-io/qstream/pkg/query"
	"github.com/qstream-io/qstream/pkg/state"
	"github.com/qstream-io/qstream/pkg/stream"
)

var ErrJobNotFound = errors.New("job not found")

// endpoint is one state-owning member of the cluster: a keyed state store
// plus the server exposing it.
type endpoint struct {
	index  int
	store  *storage.KeyedStateStore
	server *server.StateServer
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cluster is an in-process cluster harness: it owns the endpoints, runs
// submitted pipelines and answers location lookups for their states.
type Cluster struct {
	jobStore  *storage.InMemoryJobStore
	endpoints []*endpoint
	logger    logging.Logger

	mu      sync.Mutex
	running map[string]*runningJob
}

// NewCluster starts cfg.NumEndpoints state servers and returns the harness.
func NewCluster(cfg config.StateConfig, logger logging.Logger) (*Cluster, error) {
	if cfg.NumEndpoints <= 0 {
		return nil, fmt.Errorf("invalid endpoint count: %d", cfg.NumEndpoints)
	}

	cluster := &Cluster{
		jobStore: storage.NewInMemoryJobStore(),
		logger:   logger,
		running:  make(map[string]*runningJob),
	}
	for i := 0; i < cfg.NumEndpoints; i++ {
		store := storage.NewKeyedStateStore()
		srv := server.NewStateServer(store, logger)
		if err := srv.Start(cfg.BindAddr); err != nil {
			cluster.Close()
			return nil, fmt.Errorf("starting endpoint %d: %w", i, err)
		}
		cluster.endpoints = append(cluster.endpoints, &endpoint{index: i, store: store, server: srv})
	}
	return cluster, nil
}

// SubmitJob runs the graph in detached mode. The returned job ID is valid
// even when the job fails during registration; the failure surfaces in the
// job's status and cause, not as a submission error.
func (c *Cluster) SubmitJob(graph *stream.JobGraph) (uuid.UUID, error) {
	now := time.Now()
	job := &core.Job{
		ID:           graph.ID,
		Name:         graph.Name,
		Status:       core.JobStatusCreated,
		NumKeyGroups: graph.NumKeyGroups,
		SubmittedAt:  now,
	}
	if err := c.jobStore.SaveJob(job); err != nil {
		return uuid.Nil, err
	}

	c.logger.Info("Submitting job", "job_id", job.ID.String(), "name", job.Name)

	registry := state.NewRegistry()
	for _, registration := range graph.States {
		if err := registry.Register(registration.Name, registration.Desc); err != nil {
			c.failJob(job, err.Error())
			return job.ID, nil
		}
	}
	job.StateNames = registry.Names()

	assignment := c.assignKeyGroups(graph.NumKeyGroups)
	for _, ep := range c.endpoints {
		groups := ownedGroups(assignment, ep.server.Addr())
		for _, registration := range graph.States {
			ep.store.RegisterState(job.ID, registration.Name, registration.Desc, groups)
		}
	}
	if err := c.jobStore.SaveAssignment(job.ID, assignment); err != nil {
		c.failJob(job, err.Error())
		return job.ID, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &runningJob{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.running[job.ID.String()] = run
	c.mu.Unlock()

	job.Status = core.JobStatusRunning
	job.StartedAt = &now
	c.jobStore.UpdateJob(job)

	go c.runGraph(ctx, job, graph, assignment, run)
	return job.ID, nil
}

// assignKeyGroups spreads key groups across endpoints round-robin.
func (c *Cluster) assignKeyGroups(numKeyGroups int) *core.Assignment {
	addresses := make([]string, numKeyGroups)
	for group := 0; group < numKeyGroups; group++ {
		addresses[group] = c.endpoints[group%len(c.endpoints)].server.Addr()
	}
	return &core.Assignment{NumKeyGroups: numKeyGroups, Addresses: addresses}
}

func ownedGroups(assignment *core.Assignment, addr string) []int {
	var groups []int
	for group, owner := range assignment.Addresses {
		if owner == addr {
			groups = append(groups, group)
		}
	}
	return groups
}

func (c *Cluster) runGraph(ctx context.Context, job *core.Job, graph *stream.JobGraph, assignment *core.Assignment, run *runningJob) {
	defer close(run.done)

	ownerByGroup := make([]*endpoint, assignment.NumKeyGroups)
	addrToEndpoint := make(map[string]*endpoint, len(c.endpoints))
	for _, ep := range c.endpoints {
		addrToEndpoint[ep.server.Addr()] = ep
	}
	for group, addr := range assignment.Addresses {
		ownerByGroup[group] = addrToEndpoint[addr]
	}

	var wg sync.WaitGroup
	failures := make(chan error, graph.Parallelism*len(graph.Vertices))

	for _, vertex := range graph.Vertices {
		for index := 0; index < graph.Parallelism; index++ {
			wg.Add(1)
			go func(vertex stream.Vertex, index int) {
				defer wg.Done()
				subtask := stream.Subtask{Index: index, Parallelism: graph.Parallelism}
				emit := func(serializedKey, element []byte) error {
					group := pkgcore.KeyGroup(serializedKey, graph.NumKeyGroups)
					stateKey := query.JoinKeyAndNamespace(serializedKey, nil)
					return ownerByGroup[group].store.Apply(job.ID, vertex.StateName, group, stateKey, element)
				}
				if err := vertex.Run(ctx, subtask, emit); err != nil && ctx.Err() == nil {
					failures <- fmt.Errorf("vertex %q subtask %d: %w", vertex.StateName, index, err)
					// Unblock sibling subtasks idling on ctx so the failure
					// can be recorded instead of leaving the job RUNNING.
					run.cancel()
				}
			}(vertex, index)
		}
	}

	wg.Wait()
	close(failures)

	if err := <-failures; err != nil {
		c.failJob(job, err.Error())
		c.dropJobState(job.ID)
		return
	}

	// Sources only return cleanly on cancellation.
	if ctx.Err() != nil {
		c.finishJob(job, core.JobStatusCancelled, "")
	}
}

func (c *Cluster) failJob(job *core.Job, cause string) {
	c.logger.Error("Job failed", "job_id", job.ID.String(), "cause", cause)
	c.finishJob(job, core.JobStatusFailed, cause)
}

func (c *Cluster) finishJob(job *core.Job, status core.JobStatus, cause string) {
	now := time.Now()
	job.Status = status
	job.FailureCause = cause
	job.StoppedAt = &now
	c.jobStore.UpdateJob(job)

	c.mu.Lock()
	delete(c.running, job.ID.String())
	c.mu.Unlock()
}

func (c *Cluster) dropJobState(jobID uuid.UUID) {
	for _, ep := range c.endpoints {
		ep.store.DropJob(jobID)
	}
	c.jobStore.DeleteAssignment(jobID)
}

// CancelJob stops the job's sources, waits for them to drain and discards
// the job's state from every endpoint.
func (c *Cluster) CancelJob(jobID uuid.UUID) error {
	job, err := c.jobStore.GetJobByID(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}

	c.mu.Lock()
	run := c.running[jobID.String()]
	c.mu.Unlock()

	c.logger.Info("Cancelling job", "job_id", jobID.String())
	if run != nil {
		run.cancel()
		<-run.done
	}
	c.dropJobState(jobID)

	// runGraph already moved the job to CANCELLED; cover jobs that never
	// started running.
	job, err = c.jobStore.GetJobByID(jobID)
	if err != nil {
		return err
	}
	if job != nil && !job.Status.Terminal() {
		c.finishJob(job, core.JobStatusCancelled, "")
	}
	return nil
}

func (c *Cluster) GetJob(jobID uuid.UUID) (*core.Job, error) {
	job, err := c.jobStore.GetJobByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (c *Cluster) GetJobs(filter core.JobFilter) ([]*core.Job, int, error) {
	return c.jobStore.GetJobs(filter)
}

// WaitForStatus polls the job until it reaches the wanted status or ctx
// expires.
func (c *Cluster) WaitForStatus(ctx context.Context, jobID uuid.UUID, status core.JobStatus) (*core.Job, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(jobID)
		if err != nil && !errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		if job != nil {
			if job.Status == status {
				return job, nil
			}
			if job.Status.Terminal() && status != job.Status {
				return job, fmt.Errorf("job %s reached terminal status %s while waiting for %s", jobID, job.Status, status)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Lookup implements query.LocationLookup for in-process clients. Jobs that
// are not yet known resolve as unavailable so callers retry; terminal jobs
// resolve with a permanent error.
func (c *Cluster) Lookup(ctx context.Context, jobID uuid.UUID, stateName string) (*query.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	job, err := c.jobStore.GetJobByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, &query.UnavailableError{Reason: fmt.Sprintf("job %s is not known yet", jobID)}
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job %s is %s and no longer queryable", jobID, job.Status)
	}
	if !containsName(job.StateNames, stateName) {
		return nil, &query.UnavailableError{Reason: fmt.Sprintf("state %q is not registered for job %s", stateName, jobID)}
	}

	assignment, err := c.jobStore.GetAssignment(jobID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, &query.UnavailableError{Reason: fmt.Sprintf("key groups of job %s are not assigned yet", jobID)}
	}

	return &query.Location{
		JobID:        jobID,
		StateName:    stateName,
		NumKeyGroups: assignment.NumKeyGroups,
		Addresses:    append([]string(nil), assignment.Addresses...),
	}, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Close cancels every running job and stops the endpoints.
func (c *Cluster) Close() error {
	c.mu.Lock()
	runs := make([]*runningJob, 0, len(c.running))
	for _, run := range c.running {
		runs = append(runs, run)
	}
	c.mu.Unlock()

	for _, run := range runs {
		run.cancel()
		<-run.done
	}

	var firstErr error
	for _, ep := range c.endpoints {
		if err := ep.server.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
