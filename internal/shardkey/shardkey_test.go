package shardkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
)

func TestExtractPresentField(t *testing.T) {
	doc := docvalue.Object(map[string]docvalue.Value{"_key": docvalue.String("abc")})
	key, ok, err := Extract(doc, "_key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", key)
}

func TestExtractMissingField(t *testing.T) {
	doc := docvalue.Object(nil)
	_, ok, err := Extract(doc, "_key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateProducesDistinctKeys(t *testing.T) {
	a := Generate()
	b := Generate()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
