package stream

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qstream-io/qstream/pkg/serializer"
	"github.com/qstream-io/qstream/pkg/state"
)

func TestEnvironment_BuildSnapshotsPipeline(t *testing.T) {
	env := NewEnvironment(WithParallelism(8), WithNumKeyGroups(32))

	source := AddSource(env, AscendingSource(10))
	keyed := KeyBy(source,
		func(r KeyCount) int32 { return r.Key },
		serializer.Int32Serializer{},
		KeyCountSerializer{},
	)

	qs := keyed.AsQueryableState("hakuna",
		state.NewReducing[KeyCount]("sum", KeyCountSerializer{}, SumCounts))
	require.Equal(t, "hakuna", qs.Name)

	graph := env.Build("test-job")
	require.NotEqual(t, graph.ID.String(), env.Build("test-job-2").ID.String())
	require.Equal(t, 8, graph.Parallelism)
	require.Equal(t, 32, graph.NumKeyGroups)
	require.Len(t, graph.Vertices, 1)
	require.Equal(t, "hakuna", graph.Vertices[0].StateName)
	require.Len(t, graph.States, 1)
	require.Equal(t, "hakuna", graph.States[0].Name)
}

func TestEnvironment_DuplicateNamesSurviveBuild(t *testing.T) {
	// Registration collisions are detected at submission, not at build.
	env := NewEnvironment()
	source := AddSource(env, AscendingSource(1))

	keyed := KeyBy(source,
		func(r KeyCount) int32 { return r.Key },
		serializer.Int32Serializer{},
		KeyCountSerializer{},
	)
	keyed.AsQueryableValueState("duplicate-me")
	keyed.AsQueryableValueState("duplicate-me")

	graph := env.Build("collision")
	require.Len(t, graph.States, 2)
}

func TestVertex_EmitsSerializedKeyAndElement(t *testing.T) {
	env := NewEnvironment(WithParallelism(1))
	source := AddSource(env, func(ctx context.Context, subtask Subtask, collect func(KeyCount) error) error {
		return collect(KeyCount{Key: 3, Count: 7})
	})
	KeyBy(source,
		func(r KeyCount) int32 { return r.Key },
		serializer.Int32Serializer{},
		KeyCountSerializer{},
	).AsQueryableValueState("latest")

	graph := env.Build("emit-test")
	require.Len(t, graph.Vertices, 1)

	var gotKey, gotElement []byte
	err := graph.Vertices[0].Run(context.Background(), Subtask{Index: 0, Parallelism: 1},
		func(key, element []byte) error {
			gotKey = key
			gotElement = element
			return nil
		})
	require.NoError(t, err)

	key, err := serializer.Int32Serializer{}.Unmarshal(gotKey)
	require.NoError(t, err)
	require.Equal(t, int32(3), key)

	record, err := KeyCountSerializer{}.Unmarshal(gotElement)
	require.NoError(t, err)
	require.Equal(t, KeyCount{Key: 3, Count: 7}, record)
}

func TestAscendingSource_EmitsAllValuesThenIdles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const numElements = 16
	var collected []KeyCount
	done := make(chan error, 1)
	go func() {
		done <- AscendingSource(numElements)(ctx, Subtask{Index: 2, Parallelism: 4}, func(r KeyCount) error {
			collected = append(collected, r)
			if r.Count == numElements {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop after cancellation")
	}

	require.Len(t, collected, numElements+1)
	require.Equal(t, KeyCount{Key: 2, Count: 0}, collected[0])
	require.Equal(t, KeyCount{Key: 2, Count: numElements}, collected[len(collected)-1])
}

func TestKeyRangeSource_KeysStayInRange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const numKeys = 8
	seen := 0
	done := make(chan error, 1)
	go func() {
		done <- KeyRangeSource(numKeys)(ctx, Subtask{Index: 0, Parallelism: 1}, func(r KeyCount) error {
			require.GreaterOrEqual(t, r.Key, int32(0))
			require.Less(t, r.Key, int32(numKeys))
			require.EqualValues(t, 1, r.Count)
			seen++
			if seen == 32 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop after cancellation")
	}
}

func TestFileSource_ParsesShardedInput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1 10\n2 20\nbogus\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("3 30\n"), 0o644))

	parse := func(line string) (KeyCount, bool) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return KeyCount{}, false
		}
		key, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return KeyCount{}, false
		}
		count, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return KeyCount{}, false
		}
		return KeyCount{Key: int32(key), Count: count}, true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu []KeyCount
	done := make(chan error, 2)
	source := FileSource(filepath.Join(dir, "*.txt"), parse)

	collectAll := make(chan KeyCount, 16)
	for i := 0; i < 2; i++ {
		go func(i int) {
			done <- source(ctx, Subtask{Index: i, Parallelism: 2}, func(r KeyCount) error {
				collectAll <- r
				return nil
			})
		}(i)
	}

	for len(mu) < 3 {
		select {
		case r := <-collectAll:
			mu = append(mu, r)
		case <-time.After(5 * time.Second):
			t.Fatal("file source did not produce all records")
		}
	}
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	require.ElementsMatch(t, []KeyCount{{1, 10}, {2, 20}, {3, 30}}, mu)
}

func TestKeyCountSerializer_RoundTrip(t *testing.T) {
	ser := KeyCountSerializer{}
	record := KeyCount{Key: -5, Count: 1 << 40}

	data, err := ser.Marshal(record)
	require.NoError(t, err)

	decoded, err := ser.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, record, decoded)

	_, err = ser.Unmarshal(data[:11])
	require.Error(t, err)
}
