package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDeterministic(t *testing.T) {
	ctx := context.Background()
	p := NewMock(16)

	first, err := p.EmbedTexts(ctx, []string{"hello world", "other text"})
	require.NoError(t, err)
	second, err := p.EmbedTexts(ctx, []string{"hello world", "other text"})
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Len(t, first[0], 16)
	assert.NotEqual(t, first[0], first[1])
}

func TestMockEmptyBatch(t *testing.T) {
	p := NewMock(8)
	vecs, err := p.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
