package mergedbam

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerWithOrder(t *testing.T, refName string, order sam.SortOrder) *sam.Header {
	ref, err := sam.NewReference(refName, "", "", 1000, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)
	header.SortOrder = order
	return header
}

func TestMergeHeadersNoDeclaredOrder(t *testing.T) {
	h1 := headerWithOrder(t, "chr1", sam.UnknownOrder)
	h2 := headerWithOrder(t, "chr2", sam.UnknownOrder)
	merged, err := mergeHeaders([]*sam.Header{h1, h2})
	require.NoError(t, err)
	// No source declares a sort order: there is no merged header.
	assert.Nil(t, merged)
}

func TestMergeHeadersLastDeclaredOrderWins(t *testing.T) {
	h1 := headerWithOrder(t, "chr1", sam.QueryName)
	h2 := headerWithOrder(t, "chr2", sam.Coordinate)
	merged, err := mergeHeaders([]*sam.Header{h1, h2})
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, sam.Coordinate, merged.SortOrder)
	assert.Equal(t, 2, len(merged.Refs()))
}

func TestMergeHeadersUndeclaredSourcesIncluded(t *testing.T) {
	h1 := headerWithOrder(t, "chr1", sam.Coordinate)
	h2 := headerWithOrder(t, "chr2", sam.UnknownOrder)
	merged, err := mergeHeaders([]*sam.Header{h1, h2})
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, sam.Coordinate, merged.SortOrder)
	assert.Equal(t, 2, len(merged.Refs()))
}

func TestMergeHeadersSkipsNil(t *testing.T) {
	h1 := headerWithOrder(t, "chr1", sam.Coordinate)
	merged, err := mergeHeaders([]*sam.Header{nil, h1, nil})
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, 1, len(merged.Refs()))
}
