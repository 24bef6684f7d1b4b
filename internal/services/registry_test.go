package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/impact"
)

func TestRegistryAccessors(t *testing.T) {
	store := graph.NewMemoryStore()
	analyzer := impact.NewAnalyzer(store, nil)

	reg := NewRegistry(Options{
		Graph:  store,
		Impact: analyzer,
	})

	assert.Equal(t, store, reg.Graph())
	assert.Equal(t, analyzer, reg.Impact())
	assert.Nil(t, reg.Analyzer())
	assert.Nil(t, reg.VectorStore())
	assert.Nil(t, reg.Embeddings())
	assert.Nil(t, reg.Query())
	assert.Nil(t, reg.History())
	assert.Nil(t, reg.Incremental())
	assert.Nil(t, reg.Sessions())
	assert.Nil(t, reg.Pipeline())
}
