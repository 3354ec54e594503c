package query

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HTTPLocationLookup resolves state locations through the control plane's
// REST API, for clients running outside the cluster process.
type HTTPLocationLookup struct {
	baseURL string
	client  *http.Client
}

func NewHTTPLocationLookup(baseURL string, client *http.Client) *HTTPLocationLookup {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLocationLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type locationResponse struct {
	JobID        string   `json:"job_id"`
	StateName    string   `json:"state_name"`
	NumKeyGroups int      `json:"num_key_groups"`
	Addresses    []string `json:"addresses"`
}

func (h *HTTPLocationLookup) Lookup(ctx context.Context, jobID uuid.UUID, stateName string) (*Location, error) {
	url := fmt.Sprintf("%s/api/jobs/%s/state/%s/location", h.baseURL, jobID, stateName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Reason: "control plane unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusServiceUnavailable:
		return nil, &UnavailableError{Reason: fmt.Sprintf("location not resolvable (HTTP %d)", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("control plane returned HTTP %d for state %q of job %s", resp.StatusCode, stateName, jobID)
	}

	var body locationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, malformedf("decoding location response: %v", err)
	}

	return &Location{
		JobID:        jobID,
		StateName:    body.StateName,
		NumKeyGroups: body.NumKeyGroups,
		Addresses:    body.Addresses,
	}, nil
}
