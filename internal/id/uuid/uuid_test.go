package uuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUniqueV7(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	parsed, err := Parse(id1)
	require.NoError(t, err)
	assert.EqualValues(t, 7, parsed.Version())
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Parse("not-a-session")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-session")
}
