package stream

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/pkg/serializer"
	"github.com/qstream-io/qstream/pkg/state"
)

const (
	DefaultParallelism  = 4
	DefaultNumKeyGroups = 128
)

// Environment accumulates the vertices and queryable state registrations of
// one pipeline. Build turns it into an immutable JobGraph for submission.
type Environment struct {
	parallelism  int
	numKeyGroups int
	vertices     []Vertex
	states       []state.Registration
}

type EnvOption func(*Environment)

// WithParallelism sets the number of subtasks per vertex.
func WithParallelism(n int) EnvOption {
	return func(e *Environment) { e.parallelism = n }
}

// WithNumKeyGroups sets the number of key groups the job's keyspace is
// sharded into. Fixed for the lifetime of the job.
func WithNumKeyGroups(n int) EnvOption {
	return func(e *Environment) { e.numKeyGroups = n }
}

func NewEnvironment(opts ...EnvOption) *Environment {
	env := &Environment{
		parallelism:  DefaultParallelism,
		numKeyGroups: DefaultNumKeyGroups,
	}
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// Build assigns a fresh job ID and snapshots the pipeline into a JobGraph.
func (e *Environment) Build(name string) *JobGraph {
	return &JobGraph{
		ID:           uuid.New(),
		Name:         name,
		Parallelism:  e.parallelism,
		NumKeyGroups: e.numKeyGroups,
		Vertices:     append([]Vertex(nil), e.vertices...),
		States:       append([]state.Registration(nil), e.states...),
	}
}

// Subtask identifies one parallel instance of a vertex.
type Subtask struct {
	Index       int
	Parallelism int
}

// Emit hands one serialized (key, element) pair to the keyed state update
// path of the owning endpoint.
type Emit func(serializedKey, element []byte) error

// Vertex is a compiled pipeline stage: a source loop feeding one queryable
// state instance.
type Vertex struct {
	StateName string
	Run       func(ctx context.Context, subtask Subtask, emit Emit) error
}

// JobGraph is the submittable form of a pipeline.
type JobGraph struct {
	ID           uuid.UUID
	Name         string
	Parallelism  int
	NumKeyGroups int
	Vertices     []Vertex
	States       []state.Registration
}

// SourceFunc produces the records of one subtask, handing each to collect.
// It must return promptly once ctx is done.
type SourceFunc[T any] func(ctx context.Context, subtask Subtask, collect func(T) error) error

// Stream is an unkeyed record stream.
type Stream[T any] struct {
	env    *Environment
	source SourceFunc[T]
}

// AddSource attaches a source to the environment.
func AddSource[T any](env *Environment, source SourceFunc[T]) *Stream[T] {
	return &Stream[T]{env: env, source: source}
}

// KeyedStream is a stream partitioned by a key selector.
type KeyedStream[K, T any] struct {
	env      *Environment
	source   SourceFunc[T]
	selector func(T) K
	keySer   serializer.Serializer[K]
	elemSer  serializer.Serializer[T]
}

// KeyBy partitions a stream by the given selector. The key serializer
// determines key-group placement; the element serializer is the wire form of
// records and of value-state accumulators.
func KeyBy[K, T any](
	s *Stream[T],
	selector func(T) K,
	keySer serializer.Serializer[K],
	elemSer serializer.Serializer[T],
) *KeyedStream[K, T] {
	return &KeyedStream[K, T]{
		env:      s.env,
		source:   s.source,
		selector: selector,
		keySer:   keySer,
		elemSer:  elemSer,
	}
}

// QueryableState names an externally queryable view over one keyed state
// instance.
type QueryableState struct {
	Name string
}

// AsQueryableState exposes the keyed stream's state under queryName with the
// given descriptor's merge semantics. Name uniqueness is enforced at job
// submission: a duplicate fails the job, not this call.
func (ks *KeyedStream[K, T]) AsQueryableState(queryName string, desc *state.Descriptor) *QueryableState {
	source := ks.source
	selector := ks.selector
	keySer := ks.keySer
	elemSer := ks.elemSer

	ks.env.vertices = append(ks.env.vertices, Vertex{
		StateName: queryName,
		Run: func(ctx context.Context, subtask Subtask, emit Emit) error {
			return source(ctx, subtask, func(record T) error {
				keyBytes, err := keySer.Marshal(selector(record))
				if err != nil {
					return fmt.Errorf("serializing key for state %q: %w", queryName, err)
				}
				elementBytes, err := elemSer.Marshal(record)
				if err != nil {
					return fmt.Errorf("serializing element for state %q: %w", queryName, err)
				}
				return emit(keyBytes, elementBytes)
			})
		},
	})
	ks.env.states = append(ks.env.states, state.Registration{Name: queryName, Desc: desc})

	return &QueryableState{Name: queryName}
}

// AsQueryableValueState is the value-state shortcut: the element serializer
// doubles as the value serializer and each record overwrites its key's state.
func (ks *KeyedStream[K, T]) AsQueryableValueState(queryName string) *QueryableState {
	return ks.AsQueryableState(queryName, state.NewValue[T](queryName, ks.elemSer))
}
