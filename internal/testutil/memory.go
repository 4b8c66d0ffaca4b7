// Package testutil 提供测试用的内存仓储实现
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"storyscape/internal/domain/entity"
	"storyscape/internal/domain/repository"
)

// NopTx 直接执行回调的事务器
type NopTx struct{}

func (NopTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MemoryStoryRepo 内存故事仓储
type MemoryStoryRepo struct {
	mu      sync.RWMutex
	stories map[string]*entity.Story
}

func NewMemoryStoryRepo() *MemoryStoryRepo {
	return &MemoryStoryRepo{stories: make(map[string]*entity.Story)}
}

func (r *MemoryStoryRepo) Create(_ context.Context, story *entity.Story) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *story
	r.stories[story.ID] = &cp
	return nil
}

func (r *MemoryStoryRepo) GetByID(_ context.Context, id string) (*entity.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stories[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryStoryRepo) ListByOwner(_ context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var owned []*entity.Story
	for _, s := range r.stories {
		if s.OwnerID == ownerID {
			cp := *s
			owned = append(owned, &cp)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := int64(len(owned))
	start := pagination.Offset()
	if start > len(owned) {
		start = len(owned)
	}
	end := start + pagination.Limit()
	if end > len(owned) {
		end = len(owned)
	}
	return repository.NewPagedResult(owned[start:end], total, pagination), nil
}

func (r *MemoryStoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stories, id)
	return nil
}

// MemorySegmentRepo 内存片段仓储
type MemorySegmentRepo struct {
	mu       sync.RWMutex
	segments map[string]*entity.Segment
}

func NewMemorySegmentRepo() *MemorySegmentRepo {
	return &MemorySegmentRepo{segments: make(map[string]*entity.Segment)}
}

// Put 直接放入片段（测试预置）
func (r *MemorySegmentRepo) Put(segment *entity.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *segment
	r.segments[segment.ID] = &cp
}

func (r *MemorySegmentRepo) Create(_ context.Context, segment *entity.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *segment
	r.segments[segment.ID] = &cp
	return nil
}

func (r *MemorySegmentRepo) GetByID(_ context.Context, id string) (*entity.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.segments[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySegmentRepo) GetManyByIDs(_ context.Context, ids []string) ([]*entity.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Segment, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.segments[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemorySegmentRepo) ListByStory(_ context.Context, storyID string) ([]*entity.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Segment
	for _, s := range r.segments {
		if s.StoryID == storyID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemorySegmentRepo) ListRetrievableByStory(ctx context.Context, storyID string) ([]*entity.Segment, error) {
	all, err := r.ListByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Segment, 0, len(all))
	for _, s := range all {
		if s.Retrievable() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemorySegmentRepo) ClaimStatus(_ context.Context, id string, from []entity.SegmentStatus, to entity.SegmentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			s.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *MemorySegmentRepo) SetContent(_ context.Context, id, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.segments[id]; ok {
		s.ContentText = content
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemorySegmentRepo) UpdateText(_ context.Context, id, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.segments[id]; ok {
		s.ContentText = content
		s.EmbeddedAt = nil
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemorySegmentRepo) MarkEmbedded(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.segments[id]; ok {
		t := at
		s.EmbeddedAt = &t
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemorySegmentRepo) SetImageRef(_ context.Context, id, imageRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.segments[id]; ok {
		s.ImageRef = imageRef
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemorySegmentRepo) MarkFailed(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.segments[id]; ok {
		s.Status = entity.SegmentStatusFailed
		s.FailReason = reason
		s.UpdatedAt = time.Now()
	}
	return nil
}

// MemoryConnectionRepo 内存连接仓储
type MemoryConnectionRepo struct {
	mu    sync.RWMutex
	conns []*entity.Connection
}

func NewMemoryConnectionRepo() *MemoryConnectionRepo {
	return &MemoryConnectionRepo{}
}

func (r *MemoryConnectionRepo) Create(_ context.Context, conn *entity.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *conn
	r.conns = append(r.conns, &cp)
	return nil
}

func (r *MemoryConnectionRepo) ListByStory(_ context.Context, storyID string) ([]*entity.Connection, error) {
	return r.filter(func(c *entity.Connection) bool { return c.StoryID == storyID }), nil
}

func (r *MemoryConnectionRepo) ListFrom(_ context.Context, fromSegmentID string) ([]*entity.Connection, error) {
	return r.filter(func(c *entity.Connection) bool { return c.FromSegmentID == fromSegmentID }), nil
}

func (r *MemoryConnectionRepo) ListTo(_ context.Context, toSegmentID string) ([]*entity.Connection, error) {
	return r.filter(func(c *entity.Connection) bool { return c.ToSegmentID == toSegmentID }), nil
}

func (r *MemoryConnectionRepo) filter(keep func(*entity.Connection) bool) []*entity.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Connection
	for _, c := range r.conns {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
