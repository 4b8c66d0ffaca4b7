package milvus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortMatchesByDistance(t *testing.T) {
	matches := []*Match{
		{SegmentID: "c", Distance: 0.7},
		{SegmentID: "a", Distance: 0.1},
		{SegmentID: "b", Distance: 0.4},
	}

	got := sortMatches(matches, 10)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].SegmentID)
	assert.Equal(t, "b", got[1].SegmentID)
	assert.Equal(t, "c", got[2].SegmentID)
}

func TestSortMatchesTieBreakByCreatedAt(t *testing.T) {
	matches := []*Match{
		{SegmentID: "late", Distance: 0.3, CreatedAt: 2000},
		{SegmentID: "early", Distance: 0.3, CreatedAt: 1000},
		{SegmentID: "closer", Distance: 0.1, CreatedAt: 3000},
	}

	got := sortMatches(matches, 10)
	require.Len(t, got, 3)
	assert.Equal(t, "closer", got[0].SegmentID)
	// 距离相同时先创建的在前
	assert.Equal(t, "early", got[1].SegmentID)
	assert.Equal(t, "late", got[2].SegmentID)
}

func TestSortMatchesTruncatesToTopK(t *testing.T) {
	matches := []*Match{
		{SegmentID: "a", Distance: 0.1},
		{SegmentID: "b", Distance: 0.2},
		{SegmentID: "c", Distance: 0.3},
	}

	got := sortMatches(matches, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SegmentID)
	assert.Equal(t, "b", got[1].SegmentID)
}
