package retrieval

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyscape/internal/domain/entity"
	"storyscape/internal/infrastructure/persistence/milvus"
	"storyscape/internal/testutil"
)

// mapEmbedder 按文本查表返回固定向量
type mapEmbedder struct {
	vectors map[string][]float32
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vectors[t]
	}
	return out, nil
}

func (m *mapEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mapEmbedder) Dimension() int { return 2 }

// cosineIndex 在内存中按余弦距离排序的向量索引
type cosineIndex struct {
	vectors map[string]*milvus.SegmentVector
}

func newCosineIndex() *cosineIndex {
	return &cosineIndex{vectors: make(map[string]*milvus.SegmentVector)}
}

func (c *cosineIndex) Upsert(_ context.Context, sv *milvus.SegmentVector) error {
	cp := *sv
	c.vectors[sv.ID] = &cp
	return nil
}

func (c *cosineIndex) Search(_ context.Context, storyID string, queryVector []float32, topK int) ([]*milvus.Match, error) {
	var matches []*milvus.Match
	for _, sv := range c.vectors {
		if sv.StoryID != storyID {
			continue
		}
		matches = append(matches, &milvus.Match{
			SegmentID:   sv.ID,
			Distance:    cosineDistance(queryVector, sv.Vector),
			CreatedAt:   sv.CreatedAt,
			TextContent: sv.TextContent,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].CreatedAt < matches[j].CreatedAt
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (c *cosineIndex) DeleteSegment(_ context.Context, _, segmentID string) error {
	delete(c.vectors, segmentID)
	return nil
}

func (c *cosineIndex) DropStory(_ context.Context, storyID string) error {
	for id, sv := range c.vectors {
		if sv.StoryID == storyID {
			delete(c.vectors, id)
		}
	}
	return nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func indexSegment(t *testing.T, idx *cosineIndex, segments *testutil.MemorySegmentRepo, storyID, text string, vector []float32, createdAt time.Time) *entity.Segment {
	t.Helper()
	seg := entity.NewSegment(storyID, "prompt")
	seg.ContentText = text
	seg.Status = entity.SegmentStatusComplete
	seg.CreatedAt = createdAt
	segments.Put(seg)
	require.NoError(t, idx.Upsert(context.Background(), &milvus.SegmentVector{
		ID:          seg.ID,
		Vector:      vector,
		StoryID:     storyID,
		CreatedAt:   createdAt.UnixMicro(),
		TextContent: text,
	}))
	return seg
}

func TestRetrieveSelfQueryRoundTrip(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	idx := newCosineIndex()
	now := time.Now()

	own := indexSegment(t, idx, segments, "story-1", "the dragon woke", []float32{1, 0}, now)
	indexSegment(t, idx, segments, "story-1", "rain over the village", []float32{0, 1}, now.Add(time.Second))

	embedder := &mapEmbedder{vectors: map[string][]float32{
		"the dragon woke": {1, 0},
	}}

	r := NewRetriever(embedder, idx, segments)
	got, err := r.Retrieve(context.Background(), "story-1", "the dragon woke", 3)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	// 片段以自身文本查询时命中自己，距离为零
	assert.Equal(t, own.ID, got[0].Segment.ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
}

func TestRetrieveRanksByCosineDistance(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	idx := newCosineIndex()
	now := time.Now()

	far := indexSegment(t, idx, segments, "story-1", "rain over the village", []float32{0, 1}, now)
	near := indexSegment(t, idx, segments, "story-1", "the dragon slept on gold", []float32{1, 0}, now.Add(time.Second))
	mid := indexSegment(t, idx, segments, "story-1", "a knight rode east", []float32{1, 1}, now.Add(2*time.Second))

	embedder := &mapEmbedder{vectors: map[string][]float32{
		"what did the dragon do": {1, 0},
	}}

	r := NewRetriever(embedder, idx, segments)
	got, err := r.Retrieve(context.Background(), "story-1", "what did the dragon do", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, near.ID, got[0].Segment.ID)
	assert.Equal(t, mid.ID, got[1].Segment.ID)
	assert.Equal(t, far.ID, got[2].Segment.ID)
	assert.Less(t, got[0].Distance, got[1].Distance)
	assert.Less(t, got[1].Distance, got[2].Distance)
}

func TestRetrieveEqualDistanceTieBreakByCreatedAt(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	idx := newCosineIndex()
	now := time.Now()

	// 向量完全相同，距离相等，先创建的排前
	late := indexSegment(t, idx, segments, "story-1", "second telling", []float32{1, 0}, now.Add(time.Minute))
	early := indexSegment(t, idx, segments, "story-1", "first telling", []float32{1, 0}, now)

	embedder := &mapEmbedder{vectors: map[string][]float32{
		"telling": {1, 0},
	}}

	r := NewRetriever(embedder, idx, segments)
	got, err := r.Retrieve(context.Background(), "story-1", "telling", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, early.ID, got[0].Segment.ID)
	assert.Equal(t, late.ID, got[1].Segment.ID)
}

func TestRetrieveReembedOverwritesRanking(t *testing.T) {
	segments := testutil.NewMemorySegmentRepo()
	idx := newCosineIndex()
	now := time.Now()

	seg := indexSegment(t, idx, segments, "story-1", "old text", []float32{0, 1}, now)
	other := indexSegment(t, idx, segments, "story-1", "steady text", []float32{1, 1}, now.Add(time.Second))

	embedder := &mapEmbedder{vectors: map[string][]float32{
		"query": {1, 0},
	}}
	r := NewRetriever(embedder, idx, segments)

	got, err := r.Retrieve(context.Background(), "story-1", "query", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, other.ID, got[0].Segment.ID)

	// 覆盖写入后旧向量不再参与排序
	require.NoError(t, idx.Upsert(context.Background(), &milvus.SegmentVector{
		ID:          seg.ID,
		Vector:      []float32{1, 0},
		StoryID:     "story-1",
		CreatedAt:   now.UnixMicro(),
		TextContent: "new text",
	}))

	got, err = r.Retrieve(context.Background(), "story-1", "query", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, seg.ID, got[0].Segment.ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
}
