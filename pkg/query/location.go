package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// Location is the control plane's answer to "who owns this state right now":
// the per-key-group addresses of the endpoints serving one queryable state of
// one job. An empty address means the key group is not yet assigned.
type Location struct {
	JobID        uuid.UUID
	StateName    string
	NumKeyGroups int
	Addresses    []string
}

// Address returns the owner address for a key group, and whether the group
// is currently assigned.
func (l *Location) Address(keyGroup int) (string, bool) {
	if keyGroup < 0 || keyGroup >= len(l.Addresses) {
		return "", false
	}
	addr := l.Addresses[keyGroup]
	return addr, addr != ""
}

// LocationLookup resolves the current owners of a queryable state. "Job not
// found" and "state not yet assigned" are expected transient conditions and
// must be reported as *UnavailableError; anything else is treated as fatal
// and propagated without retry.
type LocationLookup interface {
	Lookup(ctx context.Context, jobID uuid.UUID, stateName string) (*Location, error)
}

// resolver wraps a LocationLookup with an optional LRU cache. Resolution is
// uncached by default since ownership moves across restarts and rescaling;
// when caching is enabled, entries are dropped whenever a lookup against a
// cached address fails with a retryable error.
type resolver struct {
	lookup LocationLookup
	cache  *lru.Cache
}

func newResolver(lookup LocationLookup, cacheSize int) (*resolver, error) {
	r := &resolver{lookup: lookup}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating location cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

func (r *resolver) resolve(ctx context.Context, jobID uuid.UUID, stateName string) (*Location, error) {
	key := cacheKey(jobID, stateName)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached.(*Location), nil
		}
	}

	location, err := r.lookup.Lookup(ctx, jobID, stateName)
	if err != nil {
		return nil, err
	}
	if location.NumKeyGroups <= 0 || len(location.Addresses) != location.NumKeyGroups {
		return nil, fmt.Errorf("inconsistent location for state %q of job %s: %d key groups, %d addresses",
			stateName, jobID, location.NumKeyGroups, len(location.Addresses))
	}

	if r.cache != nil {
		r.cache.Add(key, location)
	}
	return location, nil
}

// invalidate drops a cached location after a failed round trip so the next
// attempt re-resolves ownership instead of reusing a stale entry.
func (r *resolver) invalidate(jobID uuid.UUID, stateName string) {
	if r.cache != nil {
		r.cache.Remove(cacheKey(jobID, stateName))
	}
}

func cacheKey(jobID uuid.UUID, stateName string) string {
	return jobID.String() + "/" + stateName
}
