package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyscape/internal/domain/entity"
	"storyscape/internal/testutil"
	apperrors "storyscape/pkg/errors"
)

type graphFixture struct {
	svc      *Service
	stories  *testutil.MemoryStoryRepo
	segments *testutil.MemorySegmentRepo
	conns    *testutil.MemoryConnectionRepo
	story    *entity.Story
	root     *entity.Segment
}

func newGraphFixture(t *testing.T) *graphFixture {
	t.Helper()

	stories := testutil.NewMemoryStoryRepo()
	segments := testutil.NewMemorySegmentRepo()
	conns := testutil.NewMemoryConnectionRepo()
	svc := NewService(stories, segments, conns, testutil.NopTx{}, nil)

	story := entity.NewStory("owner-1", "test story", "once upon a time")
	require.NoError(t, stories.Create(context.Background(), story))

	root := entity.NewSegment(story.ID, "once upon a time")
	root.CreatedAt = time.Now().Add(-time.Hour)
	segments.Put(root)

	return &graphFixture{
		svc:      svc,
		stories:  stories,
		segments: segments,
		conns:    conns,
		story:    story,
		root:     root,
	}
}

// attach 预置一个已连接到父片段的片段
func (f *graphFixture) attach(t *testing.T, parent *entity.Segment, offset time.Duration) *entity.Segment {
	t.Helper()
	seg := entity.NewSegment(f.story.ID, "branch")
	seg.CreatedAt = f.root.CreatedAt.Add(offset)
	require.NoError(t, f.svc.AttachSegment(context.Background(), seg, parent.ID))
	return seg
}

func TestRootOfReturnsEarliestSegment(t *testing.T) {
	f := newGraphFixture(t)
	f.attach(t, f.root, time.Minute)

	root, err := f.svc.RootOf(context.Background(), f.story.ID)
	require.NoError(t, err)
	assert.Equal(t, f.root.ID, root.ID)
}

func TestAttachSegmentCreatesExactlyOneConnection(t *testing.T) {
	f := newGraphFixture(t)
	child := f.attach(t, f.root, time.Minute)

	conns, err := f.conns.ListByStory(context.Background(), f.story.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, f.root.ID, conns[0].FromSegmentID)
	assert.Equal(t, child.ID, conns[0].ToSegmentID)
}

func TestAttachSegmentRejectsForeignParent(t *testing.T) {
	f := newGraphFixture(t)

	other := entity.NewSegment("other-story", "elsewhere")
	f.segments.Put(other)

	seg := entity.NewSegment(f.story.ID, "branch")
	err := f.svc.AttachSegment(context.Background(), seg, other.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEdge))
}

func TestAttachSegmentRejectsMissingParent(t *testing.T) {
	f := newGraphFixture(t)

	seg := entity.NewSegment(f.story.ID, "branch")
	err := f.svc.AttachSegment(context.Background(), seg, "no-such-segment")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSegmentNotFound))
}

func TestConnectRejectsSelfLoop(t *testing.T) {
	f := newGraphFixture(t)
	child := f.attach(t, f.root, time.Minute)

	_, err := f.svc.Connect(context.Background(), f.story.ID, child.ID, child.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEdge))
}

func TestConnectRejectsIncomingEdgeToRoot(t *testing.T) {
	f := newGraphFixture(t)
	child := f.attach(t, f.root, time.Minute)

	_, err := f.svc.Connect(context.Background(), f.story.ID, child.ID, f.root.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEdge))
}

func TestConnectRejectsDuplicateEdge(t *testing.T) {
	f := newGraphFixture(t)
	child := f.attach(t, f.root, time.Minute)

	_, err := f.svc.Connect(context.Background(), f.story.ID, f.root.ID, child.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEdge))
}

func TestConnectRejectsCrossStoryEdge(t *testing.T) {
	f := newGraphFixture(t)
	child := f.attach(t, f.root, time.Minute)

	other := entity.NewSegment("other-story", "elsewhere")
	f.segments.Put(other)

	_, err := f.svc.Connect(context.Background(), f.story.ID, child.ID, other.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEdge))
}

// countingTx 统计事务执行次数
type countingTx struct {
	calls int
}

func (c *countingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	return fn(ctx)
}

func TestConnectChecksAndInsertsInOneTransaction(t *testing.T) {
	stories := testutil.NewMemoryStoryRepo()
	segments := testutil.NewMemorySegmentRepo()
	conns := testutil.NewMemoryConnectionRepo()
	tx := &countingTx{}
	svc := NewService(stories, segments, conns, tx, nil)

	story := entity.NewStory("owner-1", "test story", "once upon a time")
	require.NoError(t, stories.Create(context.Background(), story))
	root := entity.NewSegment(story.ID, "once upon a time")
	root.CreatedAt = time.Now().Add(-time.Hour)
	segments.Put(root)

	a := entity.NewSegment(story.ID, "a")
	require.NoError(t, svc.AttachSegment(context.Background(), a, root.ID))
	b := entity.NewSegment(story.ID, "b")
	require.NoError(t, svc.AttachSegment(context.Background(), b, root.ID))
	attachTxCalls := tx.calls

	_, err := svc.Connect(context.Background(), story.ID, a.ID, b.ID)
	require.NoError(t, err)
	// 重复边校验与写入在同一事务内执行
	assert.Equal(t, attachTxCalls+1, tx.calls)

	_, err = svc.Connect(context.Background(), story.ID, a.ID, b.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEdge))
	assert.Equal(t, attachTxCalls+2, tx.calls)
}

func TestConnectAllowsConvergingBranches(t *testing.T) {
	f := newGraphFixture(t)
	a := f.attach(t, f.root, time.Minute)
	b := f.attach(t, f.root, 2*time.Minute)
	c := f.attach(t, a, 3*time.Minute)

	// b 与 c 汇流
	conn, err := f.svc.Connect(context.Background(), f.story.ID, b.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, conn.FromSegmentID)
	assert.Equal(t, c.ID, conn.ToSegmentID)
}

func TestChildrenOfOrderedByConnectionCreation(t *testing.T) {
	f := newGraphFixture(t)
	a := f.attach(t, f.root, time.Minute)
	b := f.attach(t, f.root, 2*time.Minute)

	children, err := f.svc.ChildrenOf(context.Background(), f.root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, a.ID, children[0].ID)
	assert.Equal(t, b.ID, children[1].ID)
}

func TestPathToRootRootFirst(t *testing.T) {
	f := newGraphFixture(t)
	a := f.attach(t, f.root, time.Minute)
	b := f.attach(t, a, 2*time.Minute)

	path, err := f.svc.PathToRoot(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, f.root.ID, path[0].ID)
	assert.Equal(t, a.ID, path[1].ID)
	assert.Equal(t, b.ID, path[2].ID)
}

func TestPathToRootOfRootIsSingleton(t *testing.T) {
	f := newGraphFixture(t)

	path, err := f.svc.PathToRoot(context.Background(), f.root.ID)
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, f.root.ID, path[0].ID)
}

func TestPathToRootFollowsEarliestIncomingEdge(t *testing.T) {
	f := newGraphFixture(t)
	a := f.attach(t, f.root, time.Minute)
	b := f.attach(t, f.root, 2*time.Minute)
	c := f.attach(t, a, 3*time.Minute)

	// 第二条入边晚于 attach 产生的入边
	_, err := f.svc.Connect(context.Background(), f.story.ID, b.ID, c.ID)
	require.NoError(t, err)

	path, err := f.svc.PathToRoot(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, a.ID, path[1].ID)
}

func TestPathToRootDisconnectedSegment(t *testing.T) {
	f := newGraphFixture(t)

	orphan := entity.NewSegment(f.story.ID, "floating")
	orphan.CreatedAt = f.root.CreatedAt.Add(time.Minute)
	f.segments.Put(orphan)

	_, err := f.svc.PathToRoot(context.Background(), orphan.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDisconnectedGraph))
}

func TestPathToRootDetectsCycle(t *testing.T) {
	f := newGraphFixture(t)

	// 两个互相指向、均无法回溯到根的片段
	x := entity.NewSegment(f.story.ID, "x")
	x.CreatedAt = f.root.CreatedAt.Add(time.Minute)
	y := entity.NewSegment(f.story.ID, "y")
	y.CreatedAt = f.root.CreatedAt.Add(2 * time.Minute)
	f.segments.Put(x)
	f.segments.Put(y)
	require.NoError(t, f.conns.Create(context.Background(), entity.NewConnection(f.story.ID, x.ID, y.ID)))
	require.NoError(t, f.conns.Create(context.Background(), entity.NewConnection(f.story.ID, y.ID, x.ID)))

	_, err := f.svc.PathToRoot(context.Background(), y.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDisconnectedGraph))
}

func TestDumpStoryContainsAllSegmentsAndConnections(t *testing.T) {
	f := newGraphFixture(t)
	f.attach(t, f.root, time.Minute)
	f.attach(t, f.root, 2*time.Minute)

	dump, err := f.svc.DumpStory(context.Background(), f.story.ID)
	require.NoError(t, err)
	assert.Equal(t, f.story.ID, dump.StoryID)
	assert.Len(t, dump.Segments, 3)
	assert.Len(t, dump.Connections, 2)
}

func TestDumpStoryUnknownStory(t *testing.T) {
	f := newGraphFixture(t)

	_, err := f.svc.DumpStory(context.Background(), "no-such-story")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStoryNotFound))
}
