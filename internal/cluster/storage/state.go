package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/pkg/state"
)

var (
	ErrStateNotRegistered = errors.New("state not registered")
	ErrKeyGroupNotLocal   = errors.New("key group not local to this endpoint")
	ErrKeyNotFound        = errors.New("key not found")
)

// stateInstance holds the serialized accumulators of one queryable state on
// one endpoint. Keys inside a group are the joined key+namespace bytes.
type stateInstance struct {
	desc   *state.Descriptor
	groups map[int]map[string][]byte
}

// KeyedStateStore holds the queryable state owned by a single endpoint,
// partitioned by key group. All values are serialized accumulators.
type KeyedStateStore struct {
	mu     sync.RWMutex
	states map[string]*stateInstance // jobID/stateName
}

func NewKeyedStateStore() *KeyedStateStore {
	return &KeyedStateStore{
		states: make(map[string]*stateInstance),
	}
}

func stateKey(jobID uuid.UUID, name string) string {
	return jobID.String() + "/" + name
}

// RegisterState makes a queryable state known to the endpoint and declares
// which key groups it owns.
func (s *KeyedStateStore) RegisterState(jobID uuid.UUID, name string, desc *state.Descriptor, ownedGroups []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance := &stateInstance{
		desc:   desc,
		groups: make(map[int]map[string][]byte, len(ownedGroups)),
	}
	for _, group := range ownedGroups {
		instance.groups[group] = make(map[string][]byte)
	}
	s.states[stateKey(jobID, name)] = instance
}

// Apply folds one element into the accumulator stored under the joined
// key+namespace bytes, using the descriptor's merge function.
func (s *KeyedStateStore) Apply(jobID uuid.UUID, name string, keyGroup int, key []byte, element []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, exists := s.states[stateKey(jobID, name)]
	if !exists {
		return ErrStateNotRegistered
	}
	group, owned := instance.groups[keyGroup]
	if !owned {
		return ErrKeyGroupNotLocal
	}
	current, found := group[string(key)]
	next, err := instance.desc.Update(current, found, element)
	if err != nil {
		return fmt.Errorf("updating state %q: %w", name, err)
	}
	group[string(key)] = next
	return nil
}

// Get returns the serialized accumulator for the joined key+namespace bytes.
// A key that was never written resolves to the descriptor's default value
// when one is configured.
func (s *KeyedStateStore) Get(jobID uuid.UUID, name string, keyGroup int, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, exists := s.states[stateKey(jobID, name)]
	if !exists {
		return nil, ErrStateNotRegistered
	}
	group, owned := instance.groups[keyGroup]
	if !owned {
		return nil, ErrKeyGroupNotLocal
	}
	value, found := group[string(key)]
	if !found {
		if def, ok := instance.desc.Default(); ok {
			return def, nil
		}
		return nil, ErrKeyNotFound
	}
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// DropJob discards every state instance belonging to the job.
func (s *KeyedStateStore) DropJob(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := jobID.String() + "/"
	for key := range s.states {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.states, key)
		}
	}
}
