package rest

import (
	"github.com/qstream-io/qstream/internal/cluster/core"
	"github.com/qstream-io/qstream/pkg/query"
)

func toJobResponse(job *core.Job) JobResponse {
	return JobResponse{
		JobID:        job.ID.String(),
		Name:         job.Name,
		Status:       string(job.Status),
		FailureCause: job.FailureCause,
		NumKeyGroups: job.NumKeyGroups,
		StateNames:   job.StateNames,
		SubmittedAt:  job.SubmittedAt,
		StartedAt:    job.StartedAt,
		StoppedAt:    job.StoppedAt,
	}
}

func toJobSummary(job *core.Job) JobSummary {
	return JobSummary{
		JobID:       job.ID.String(),
		Name:        job.Name,
		Status:      string(job.Status),
		SubmittedAt: job.SubmittedAt,
	}
}

func toLocationResponse(location *query.Location) LocationResponse {
	return LocationResponse{
		JobID:        location.JobID.String(),
		StateName:    location.StateName,
		NumKeyGroups: location.NumKeyGroups,
		Addresses:    location.Addresses,
	}
}
