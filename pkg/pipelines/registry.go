package pipelines

import (
	"fmt"
	"sort"

	"github.com/qstream-io/qstream/pkg/stream"
)

// Builder assembles a fresh job graph each time the pipeline is submitted.
type Builder func(opts ...stream.EnvOption) *stream.JobGraph

var registry = make(map[string]Builder)

func Register(name string, builder Builder) error {
	if _, exists := registry[name]; exists {
		return fmt.Errorf("pipeline already registered: %s", name)
	}
	registry[name] = builder
	return nil
}

func Get(name string) (Builder, error) {
	builder, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("pipeline not found: %s", name)
	}
	return builder, nil
}

func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
