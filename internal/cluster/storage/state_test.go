package storage

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/qstream-io/qstream/pkg/serializer"
	"github.com/qstream-io/qstream/pkg/state"
)

func sumDescriptor(t *testing.T) *state.Descriptor {
	t.Helper()
	return state.NewReducing("sum", serializer.Int64Serializer{}, func(acc, value int64) int64 {
		return acc + value
	})
}

func TestKeyedStateStore_ApplyAndGet(t *testing.T) {
	store := NewKeyedStateStore()
	jobID := uuid.New()
	ser := serializer.Int64Serializer{}

	store.RegisterState(jobID, "sum", sumDescriptor(t), []int{0, 1})

	for _, v := range []int64{1, 2, 3} {
		element, err := ser.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, store.Apply(jobID, "sum", 0, []byte("k"), element))
	}

	raw, err := store.Get(jobID, "sum", 0, []byte("k"))
	require.NoError(t, err)
	got, err := ser.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, int64(6), got)
}

func TestKeyedStateStore_UnwrittenKeyFallsBackToDefault(t *testing.T) {
	store := NewKeyedStateStore()
	jobID := uuid.New()

	desc, err := state.NewValueWithDefault("latest", serializer.Int64Serializer{}, int64(1337))
	require.NoError(t, err)
	store.RegisterState(jobID, "latest", desc, []int{0})

	raw, err := store.Get(jobID, "latest", 0, []byte("never-written"))
	require.NoError(t, err)
	got, err := serializer.Int64Serializer{}.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, int64(1337), got)
}

func TestKeyedStateStore_UnwrittenKeyWithoutDefault(t *testing.T) {
	store := NewKeyedStateStore()
	jobID := uuid.New()
	store.RegisterState(jobID, "sum", sumDescriptor(t), []int{0})

	_, err := store.Get(jobID, "sum", 0, []byte("never-written"))
	require.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestKeyedStateStore_UnknownStateAndForeignGroup(t *testing.T) {
	store := NewKeyedStateStore()
	jobID := uuid.New()
	store.RegisterState(jobID, "sum", sumDescriptor(t), []int{3})

	_, err := store.Get(jobID, "nope", 3, []byte("k"))
	require.True(t, errors.Is(err, ErrStateNotRegistered))

	_, err = store.Get(jobID, "sum", 7, []byte("k"))
	require.True(t, errors.Is(err, ErrKeyGroupNotLocal))

	err = store.Apply(jobID, "sum", 7, []byte("k"), []byte{0, 0, 0, 0, 0, 0, 0, 1})
	require.True(t, errors.Is(err, ErrKeyGroupNotLocal))
}

func TestKeyedStateStore_DropJob(t *testing.T) {
	store := NewKeyedStateStore()
	jobID := uuid.New()
	otherJob := uuid.New()
	store.RegisterState(jobID, "sum", sumDescriptor(t), []int{0})
	store.RegisterState(otherJob, "sum", sumDescriptor(t), []int{0})

	store.DropJob(jobID)

	_, err := store.Get(jobID, "sum", 0, []byte("k"))
	require.True(t, errors.Is(err, ErrStateNotRegistered))

	_, err = store.Get(otherJob, "sum", 0, []byte("k"))
	require.True(t, errors.Is(err, ErrKeyNotFound))
}
