package pipelines

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qstream-io/qstream/pkg/stream"
)

func TestBuiltinsAreRegistered(t *testing.T) {
	names := List()
	require.Contains(t, names, "ascending-sum")
	require.Contains(t, names, "random-counts")
}

func TestRegister_Duplicate(t *testing.T) {
	require.Error(t, Register("ascending-sum", AscendingSum))
}

func TestGet_Unknown(t *testing.T) {
	_, err := Get("no-such-pipeline")
	require.Error(t, err)
}

func TestBuildersProduceFreshGraphs(t *testing.T) {
	builder, err := Get("ascending-sum")
	require.NoError(t, err)

	first := builder(stream.WithParallelism(1))
	second := builder(stream.WithParallelism(1))
	require.NotEqual(t, first.ID, second.ID)
	require.Len(t, first.States, 1)
	require.Equal(t, "ascending-sum", first.States[0].Name)
}
