package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyscape/internal/application/graph"
	"storyscape/internal/application/retrieval"
	"storyscape/internal/domain/entity"
	"storyscape/internal/infrastructure/persistence/milvus"
	"storyscape/internal/testutil"
	apperrors "storyscape/pkg/errors"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls += len(texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
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

func (f *fakeEmbedder) Dimension() int { return 3 }

type fakeVectorIndex struct {
	upserts []*milvus.SegmentVector
	matches []*milvus.Match
	dropped []string
}

func (f *fakeVectorIndex) Upsert(_ context.Context, sv *milvus.SegmentVector) error {
	f.upserts = append(f.upserts, sv)
	return nil
}

func (f *fakeVectorIndex) Search(_ context.Context, _ string, _ []float32, topK int) ([]*milvus.Match, error) {
	matches := f.matches
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *fakeVectorIndex) DeleteSegment(_ context.Context, _, _ string) error { return nil }

func (f *fakeVectorIndex) DropStory(_ context.Context, storyID string) error {
	f.dropped = append(f.dropped, storyID)
	return nil
}

type fakeTextGen struct {
	calls      int
	text       string
	err        error
	onGenerate func()
}

func (f *fakeTextGen) Generate(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.onGenerate != nil {
		f.onGenerate()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeImageGen struct {
	calls     int
	url       string
	err       error
	lastStyle string
}

func (f *fakeImageGen) Generate(_ context.Context, _, style string) (string, error) {
	f.calls++
	f.lastStyle = style
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type orchestratorFixture struct {
	orch     *Orchestrator
	stories  *testutil.MemoryStoryRepo
	segments *testutil.MemorySegmentRepo
	embedder *fakeEmbedder
	vector   *fakeVectorIndex
	textGen  *fakeTextGen
	imageGen *fakeImageGen
	story    *entity.Story
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	stories := testutil.NewMemoryStoryRepo()
	segments := testutil.NewMemorySegmentRepo()
	conns := testutil.NewMemoryConnectionRepo()
	embedder := &fakeEmbedder{}
	vector := &fakeVectorIndex{}
	textGen := &fakeTextGen{text: "generated story text"}
	imageGen := &fakeImageGen{url: "https://img.example/x.png"}

	graphSvc := graph.NewService(stories, segments, conns, testutil.NopTx{}, nil)
	retriever := retrieval.NewRetriever(embedder, vector, segments)
	augmenter := retrieval.NewAugmenter(5, 400)

	orch := NewOrchestrator(
		stories, segments, graphSvc, retriever, augmenter,
		embedder, vector, textGen, imageGen,
		nil, testutil.NopTx{}, nil, 3,
	)

	story := entity.NewStory("owner-1", "test", "in the beginning")
	require.NoError(t, stories.Create(context.Background(), story))

	return &orchestratorFixture{
		orch:     orch,
		stories:  stories,
		segments: segments,
		embedder: embedder,
		vector:   vector,
		textGen:  textGen,
		imageGen: imageGen,
		story:    story,
	}
}

func (f *orchestratorFixture) pendingSegment() *entity.Segment {
	seg := entity.NewSegment(f.story.ID, "what happens next")
	f.segments.Put(seg)
	return seg
}

func (f *orchestratorFixture) segmentInStatus(status entity.SegmentStatus, text string) *entity.Segment {
	seg := entity.NewSegment(f.story.ID, "prompt")
	seg.Status = status
	seg.ContentText = text
	f.segments.Put(seg)
	return seg
}

func TestRunTextGenerationHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.pendingSegment()

	err := f.orch.RunTextGeneration(context.Background(), f.story.ID, seg.ID)
	require.NoError(t, err)

	got, err := f.segments.GetByID(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SegmentStatusComplete, got.Status)
	assert.Equal(t, "generated story text", got.ContentText)
	assert.NotNil(t, got.EmbeddedAt)

	assert.Equal(t, 1, f.textGen.calls)
	require.Len(t, f.vector.upserts, 1)
	assert.Equal(t, seg.ID, f.vector.upserts[0].ID)
	assert.Equal(t, f.story.ID, f.vector.upserts[0].StoryID)
	assert.Equal(t, "generated story text", f.vector.upserts[0].TextContent)
}

func TestRunTextGenerationDoubleDeliveryIsNoop(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.pendingSegment()

	require.NoError(t, f.orch.RunTextGeneration(context.Background(), f.story.ID, seg.ID))
	// 至少一次投递语义下的重复消息
	require.NoError(t, f.orch.RunTextGeneration(context.Background(), f.story.ID, seg.ID))

	assert.Equal(t, 1, f.textGen.calls)
	assert.Len(t, f.vector.upserts, 1)
}

func TestRunTextGenerationModelFailureMarksFailed(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.textGen.err = errors.New("model unavailable")
	seg := f.pendingSegment()

	// 失败落终态，消息按成功确认
	err := f.orch.RunTextGeneration(context.Background(), f.story.ID, seg.ID)
	require.NoError(t, err)

	got, err := f.segments.GetByID(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SegmentStatusFailed, got.Status)
	assert.Contains(t, got.FailReason, "model unavailable")
	assert.Empty(t, f.vector.upserts)
}

func TestRunTextGenerationAbortsWhenFailedMidPipeline(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.pendingSegment()

	// 模型调用期间片段被他方置为失败终态
	f.textGen.onGenerate = func() {
		require.NoError(t, f.segments.MarkFailed(context.Background(), seg.ID, "claimed by reaper"))
	}

	err := f.orch.RunTextGeneration(context.Background(), f.story.ID, seg.ID)
	require.NoError(t, err)

	got, err := f.segments.GetByID(context.Background(), seg.ID)
	require.NoError(t, err)
	// 终态不被流水线覆盖，向量也不写入
	assert.Equal(t, entity.SegmentStatusFailed, got.Status)
	assert.Equal(t, "claimed by reaper", got.FailReason)
	assert.Empty(t, f.vector.upserts)
	assert.Nil(t, got.EmbeddedAt)
}

func TestRunImageGenerationHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.segmentInStatus(entity.SegmentStatusComplete, "a castle at dusk")

	err := f.orch.RunImageGeneration(context.Background(), f.story.ID, seg.ID, "watercolor")
	require.NoError(t, err)

	got, err := f.segments.GetByID(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SegmentStatusComplete, got.Status)
	assert.Equal(t, "https://img.example/x.png", got.ImageRef)
	assert.Equal(t, 1, f.imageGen.calls)
	assert.Equal(t, "watercolor", f.imageGen.lastStyle)
}

func TestRunImageGenerationSkipsUnreadySegment(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.pendingSegment()

	err := f.orch.RunImageGeneration(context.Background(), f.story.ID, seg.ID, "")
	require.NoError(t, err)

	got, err := f.segments.GetByID(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SegmentStatusPending, got.Status)
	assert.Zero(t, f.imageGen.calls)
}

func TestRunImageGenerationFailureMarksFailed(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.imageGen.err = errors.New("image service down")
	seg := f.segmentInStatus(entity.SegmentStatusTextReady, "a castle at dusk")

	err := f.orch.RunImageGeneration(context.Background(), f.story.ID, seg.ID, "")
	require.NoError(t, err)

	got, err := f.segments.GetByID(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SegmentStatusFailed, got.Status)
}

func TestRequestImageRejectsWhileGeneratingText(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.segmentInStatus(entity.SegmentStatusGeneratingText, "")

	err := f.orch.RequestImage(context.Background(), seg.ID, "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeImageNotReady))
}

func TestRequestImageRejectsPendingSegment(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.pendingSegment()

	err := f.orch.RequestImage(context.Background(), seg.ID, "sketch")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeImageNotReady))
}

func TestEditSegmentTextRejectsNonEditable(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.pendingSegment()

	_, err := f.orch.EditSegmentText(context.Background(), seg.ID, "new text")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSegmentNotEditable))
}

func TestCreateSegmentUnknownStory(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.CreateSegment(context.Background(), "no-such-story", "parent", "prompt")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStoryNotFound))
}

func TestRunReembedSkipsNonRetrievable(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.pendingSegment()

	err := f.orch.RunReembed(context.Background(), f.story.ID, seg.ID)
	require.NoError(t, err)
	assert.Empty(t, f.vector.upserts)
}

func TestRunReembedOverwritesVector(t *testing.T) {
	f := newOrchestratorFixture(t)
	seg := f.segmentInStatus(entity.SegmentStatusComplete, "edited text")

	before := time.Now()
	err := f.orch.RunReembed(context.Background(), f.story.ID, seg.ID)
	require.NoError(t, err)

	require.Len(t, f.vector.upserts, 1)
	assert.Equal(t, "edited text", f.vector.upserts[0].TextContent)

	got, err := f.segments.GetByID(context.Background(), seg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EmbeddedAt)
	assert.False(t, got.EmbeddedAt.Before(before))
}

func TestDeleteStoryDropsVectors(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.segmentInStatus(entity.SegmentStatusComplete, "text")

	err := f.orch.DeleteStory(context.Background(), f.story.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{f.story.ID}, f.vector.dropped)
	got, err := f.stories.GetByID(context.Background(), f.story.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
