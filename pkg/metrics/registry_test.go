package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRegistryExportsRuntimeMetrics(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	first := GetRegistry()
	InitRegistry()
	assert.Same(t, first, GetRegistry(), "second init keeps the registry")

	families, err := first.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}
