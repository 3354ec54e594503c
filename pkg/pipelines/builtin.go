package pipelines

import (
	"strconv"
	"strings"

	"github.com/qstream-io/qstream/pkg/serializer"
	"github.com/qstream-io/qstream/pkg/state"
	"github.com/qstream-io/qstream/pkg/stream"
)

// The built-in demo pipelines. Each exposes a single queryable state named
// after the pipeline.
func init() {
	Register("ascending-sum", AscendingSum)
	Register("random-counts", RandomCounts)
}

// AscendingSum sums an ascending sequence per key into reducing state
// queryable as "ascending-sum".
func AscendingSum(opts ...stream.EnvOption) *stream.JobGraph {
	env := stream.NewEnvironment(opts...)
	keyed := keyedCounts(env, stream.AscendingSource(1024))
	keyed.AsQueryableState("ascending-sum",
		state.NewReducing("sum", stream.KeyCountSerializer{}, stream.SumCounts))
	return env.Build("ascending-sum")
}

// RandomCounts counts occurrences of random keys into reducing state
// queryable as "random-counts".
func RandomCounts(opts ...stream.EnvOption) *stream.JobGraph {
	env := stream.NewEnvironment(opts...)
	keyed := keyedCounts(env, stream.KeyRangeSource(256))
	keyed.AsQueryableState("random-counts",
		state.NewReducing("counts", stream.KeyCountSerializer{}, stream.SumCounts))
	return env.Build("random-counts")
}

// FileCounts aggregates "key count" lines from the files matching pattern
// into reducing state queryable as "file-counts". Built on demand rather
// than registered in init because it needs a pattern.
func FileCounts(pattern string) Builder {
	return func(opts ...stream.EnvOption) *stream.JobGraph {
		env := stream.NewEnvironment(opts...)
		source := stream.FileSource(pattern, func(line string) (stream.KeyCount, bool) {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				return stream.KeyCount{}, false
			}
			key, err := strconv.ParseInt(fields[0], 10, 32)
			if err != nil {
				return stream.KeyCount{}, false
			}
			count, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return stream.KeyCount{}, false
			}
			return stream.KeyCount{Key: int32(key), Count: count}, true
		})
		keyed := keyedCounts(env, source)
		keyed.AsQueryableState("file-counts",
			state.NewReducing("counts", stream.KeyCountSerializer{}, stream.SumCounts))
		return env.Build("file-counts")
	}
}

func keyedCounts(env *stream.Environment, source stream.SourceFunc[stream.KeyCount]) *stream.KeyedStream[int32, stream.KeyCount] {
	return stream.KeyBy(
		stream.AddSource(env, source),
		func(r stream.KeyCount) int32 { return r.Key },
		serializer.Int32Serializer{},
		stream.KeyCountSerializer{},
	)
}
