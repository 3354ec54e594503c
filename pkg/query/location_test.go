package query

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type staticLookup struct {
	location *Location
	calls    int
}

func (s *staticLookup) Lookup(ctx context.Context, jobID uuid.UUID, stateName string) (*Location, error) {
	s.calls++
	return s.location, nil
}

func TestLocationAddress(t *testing.T) {
	location := &Location{
		NumKeyGroups: 3,
		Addresses:    []string{"a:1", "", "b:2"},
	}

	addr, assigned := location.Address(0)
	require.True(t, assigned)
	require.Equal(t, "a:1", addr)

	_, assigned = location.Address(1)
	require.False(t, assigned, "empty address means unassigned")

	_, assigned = location.Address(-1)
	require.False(t, assigned)
	_, assigned = location.Address(3)
	require.False(t, assigned)
}

func TestResolver_RejectsInconsistentLocation(t *testing.T) {
	lookup := &staticLookup{location: &Location{NumKeyGroups: 4, Addresses: []string{"a:1"}}}
	r, err := newResolver(lookup, 0)
	require.NoError(t, err)

	_, err = r.resolve(context.Background(), uuid.New(), "sum")
	require.Error(t, err)
	require.False(t, Retryable(err))
}

func TestResolver_CacheAndInvalidate(t *testing.T) {
	jobID := uuid.New()
	lookup := &staticLookup{location: &Location{NumKeyGroups: 1, Addresses: []string{"a:1"}}}
	r, err := newResolver(lookup, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := r.resolve(context.Background(), jobID, "sum")
		require.NoError(t, err)
	}
	require.Equal(t, 1, lookup.calls)

	r.invalidate(jobID, "sum")
	_, err = r.resolve(context.Background(), jobID, "sum")
	require.NoError(t, err)
	require.Equal(t, 2, lookup.calls)
}
