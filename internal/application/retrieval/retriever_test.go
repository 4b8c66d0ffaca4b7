package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyscape/internal/domain/entity"
	"storyscape/internal/infrastructure/persistence/milvus"
	"storyscape/internal/testutil"
)

type fakeEmbedder struct {
	dimension int
	embedded  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		f.embedded = append(f.embedded, t)
		out[i] = make([]float32, f.dimension)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) Dimension() int { return f.dimension }

type fakeVectorIndex struct {
	matches   map[string][]*milvus.Match // storyID -> 命中（按距离升序）
	lastTopK  int
	lastStory string
	upserted  []*milvus.SegmentVector
}

func (f *fakeVectorIndex) Upsert(_ context.Context, sv *milvus.SegmentVector) error {
	f.upserted = append(f.upserted, sv)
	return nil
}

func (f *fakeVectorIndex) Search(_ context.Context, storyID string, _ []float32, topK int) ([]*milvus.Match, error) {
	f.lastStory = storyID
	f.lastTopK = topK
	matches := f.matches[storyID]
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *fakeVectorIndex) DeleteSegment(_ context.Context, _, _ string) error { return nil }
func (f *fakeVectorIndex) DropStory(_ context.Context, _ string) error        { return nil }

func readySegment(storyID, text string) *entity.Segment {
	seg := entity.NewSegment(storyID, "prompt")
	seg.ContentText = text
	seg.Status = entity.SegmentStatusComplete
	return seg
}

func TestClampTopK(t *testing.T) {
	assert.Equal(t, MinTopK, ClampTopK(0))
	assert.Equal(t, MinTopK, ClampTopK(-7))
	assert.Equal(t, 4, ClampTopK(4))
	assert.Equal(t, MaxTopK, ClampTopK(100))
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{dimension: 4}, &fakeVectorIndex{}, testutil.NewMemorySegmentRepo())

	_, err := r.Retrieve(context.Background(), "story-1", "   ", 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetrievePreservesVectorOrder(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	vector := &fakeVectorIndex{matches: map[string][]*milvus.Match{}}

	s1 := readySegment("story-1", "the princess entered the cave")
	s2 := readySegment("story-1", "a dragon slept on gold")
	s3 := readySegment("story-1", "rain fell on the village")
	for _, s := range []*entity.Segment{s1, s2, s3} {
		segments.Put(s)
	}
	vector.matches["story-1"] = []*milvus.Match{
		{SegmentID: s2.ID, Distance: 0.1},
		{SegmentID: s3.ID, Distance: 0.4},
		{SegmentID: s1.ID, Distance: 0.7},
	}

	r := NewRetriever(&fakeEmbedder{dimension: 4}, vector, segments)
	got, err := r.Retrieve(context.Background(), "story-1", "dragon", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, s2.ID, got[0].Segment.ID)
	assert.Equal(t, s3.ID, got[1].Segment.ID)
	assert.Equal(t, s1.ID, got[2].Segment.ID)
	assert.InDelta(t, 0.1, got[0].Distance, 1e-9)
}

func TestRetrieveDropsNonRetrievableAndForeignSegments(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	vector := &fakeVectorIndex{matches: map[string][]*milvus.Match{}}

	ready := readySegment("story-1", "ready text")
	pending := entity.NewSegment("story-1", "still generating")
	failed := readySegment("story-1", "broken")
	failed.Status = entity.SegmentStatusFailed
	foreign := readySegment("story-2", "other story text")
	for _, s := range []*entity.Segment{ready, pending, failed, foreign} {
		segments.Put(s)
	}

	// 陈旧索引条目：包含已不可检索的片段与异库片段
	vector.matches["story-1"] = []*milvus.Match{
		{SegmentID: pending.ID, Distance: 0.1},
		{SegmentID: failed.ID, Distance: 0.2},
		{SegmentID: foreign.ID, Distance: 0.3},
		{SegmentID: ready.ID, Distance: 0.4},
		{SegmentID: "missing", Distance: 0.5},
	}

	r := NewRetriever(&fakeEmbedder{dimension: 4}, vector, segments)
	got, err := r.Retrieve(context.Background(), "story-1", "query", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ready.ID, got[0].Segment.ID)
}

func TestRetrieveScopesToStory(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	vector := &fakeVectorIndex{matches: map[string][]*milvus.Match{}}

	s := readySegment("story-1", "text")
	segments.Put(s)
	vector.matches["story-1"] = []*milvus.Match{{SegmentID: s.ID, Distance: 0.2}}

	r := NewRetriever(&fakeEmbedder{dimension: 4}, vector, segments)

	got, err := r.Retrieve(context.Background(), "story-2", "query", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "story-2", vector.lastStory)
}

func TestRetrieveFewerSegmentsThanTopK(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	vector := &fakeVectorIndex{matches: map[string][]*milvus.Match{}}

	s1 := readySegment("story-1", "one")
	s2 := readySegment("story-1", "two")
	s2.CreatedAt = s1.CreatedAt.Add(time.Second)
	segments.Put(s1)
	segments.Put(s2)
	vector.matches["story-1"] = []*milvus.Match{
		{SegmentID: s1.ID, Distance: 0.1},
		{SegmentID: s2.ID, Distance: 0.2},
	}

	r := NewRetriever(&fakeEmbedder{dimension: 4}, vector, segments)
	got, err := r.Retrieve(context.Background(), "story-1", "query", 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 5, vector.lastTopK)
}
