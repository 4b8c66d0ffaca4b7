package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAtLeast(t *testing.T) {
	assert.True(t, SegmentStatusComplete.AtLeast(SegmentStatusTextReady))
	assert.True(t, SegmentStatusTextReady.AtLeast(SegmentStatusTextReady))
	assert.False(t, SegmentStatusPending.AtLeast(SegmentStatusTextReady))
	// failed 不参与生命周期序
	assert.False(t, SegmentStatusFailed.AtLeast(SegmentStatusPending))
	assert.False(t, SegmentStatusComplete.AtLeast(SegmentStatusFailed))
}

func TestRetrievable(t *testing.T) {
	seg := NewSegment("story-1", "prompt")
	assert.False(t, seg.Retrievable())

	seg.Status = SegmentStatusTextReady
	assert.True(t, seg.Retrievable())

	seg.Status = SegmentStatusGeneratingImage
	assert.True(t, seg.Retrievable())

	seg.Status = SegmentStatusFailed
	assert.False(t, seg.Retrievable())
}

func TestEditable(t *testing.T) {
	seg := NewSegment("story-1", "prompt")
	assert.False(t, seg.Editable())

	for _, st := range []SegmentStatus{SegmentStatusTextReady, SegmentStatusImageReady, SegmentStatusComplete} {
		seg.Status = st
		assert.True(t, seg.Editable(), string(st))
	}
	for _, st := range []SegmentStatus{SegmentStatusGeneratingText, SegmentStatusGeneratingImage, SegmentStatusFailed} {
		seg.Status = st
		assert.False(t, seg.Editable(), string(st))
	}
}

func TestImageRequestable(t *testing.T) {
	seg := NewSegment("story-1", "prompt")
	assert.False(t, seg.ImageRequestable())

	seg.Status = SegmentStatusTextReady
	assert.True(t, seg.ImageRequestable())

	seg.Status = SegmentStatusComplete
	assert.True(t, seg.ImageRequestable())

	seg.Status = SegmentStatusGeneratingImage
	assert.False(t, seg.ImageRequestable())
}

func TestEmbeddingPresent(t *testing.T) {
	seg := NewSegment("story-1", "prompt")
	assert.False(t, seg.EmbeddingPresent())
}
