package rest

import (
	"time"
)

type JobResponse struct {
	JobID        string     `json:"job_id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	FailureCause string     `json:"failure_cause,omitempty"`
	NumKeyGroups int        `json:"num_key_groups"`
	StateNames   []string   `json:"state_names"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
}

type JobSummary struct {
	JobID       string    `json:"job_id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type ListJobsResponse struct {
	Jobs       []JobSummary `json:"jobs"`
	Total      int          `json:"total"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
	NextOffset *int         `json:"next_offset,omitempty"`
}

type LocationResponse struct {
	JobID        string   `json:"job_id"`
	StateName    string   `json:"state_name"`
	NumKeyGroups int      `json:"num_key_groups"`
	Addresses    []string `json:"addresses"`
}

type CancelJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
