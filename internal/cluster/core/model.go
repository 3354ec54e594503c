package core

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusCreated   JobStatus = "CREATED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether a job can change status again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFailed || s == JobStatusCancelled
}

// Job is the control plane's record of one submitted pipeline.
type Job struct {
	ID           uuid.UUID
	Name         string
	Status       JobStatus
	FailureCause string

	NumKeyGroups int
	StateNames   []string

	SubmittedAt time.Time
	StartedAt   *time.Time
	StoppedAt   *time.Time
}

// Assignment maps every key group of a job to the state server address of
// the endpoint owning it. An empty address means the group is not yet
// assigned.
type Assignment struct {
	NumKeyGroups int
	Addresses    []string
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status *JobStatus
	Limit  int
	Offset int
}
