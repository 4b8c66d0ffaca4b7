// Package graph 维护故事片段图谱（有向无环、单根）
package graph

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyscape/internal/domain/entity"
	"storyscape/internal/domain/repository"
	"storyscape/internal/infrastructure/persistence/redis"
	apperrors "storyscape/pkg/errors"
)

var tracer = otel.Tracer("graph")

const dumpCacheTTL = 5 * time.Minute

// Service 图谱服务。
// 不变量：每个故事恰有一个根片段（最早创建、无入边）；根不接受入边；
// 连接一经创建不可修改。
type Service struct {
	stories     repository.StoryRepository
	segments    repository.SegmentRepository
	connections repository.ConnectionRepository
	tx          repository.Transactor
	cache       *redis.Cache
}

func NewService(
	stories repository.StoryRepository,
	segments repository.SegmentRepository,
	connections repository.ConnectionRepository,
	tx repository.Transactor,
	cache *redis.Cache,
) *Service {
	return &Service{
		stories:     stories,
		segments:    segments,
		connections: connections,
		tx:          tx,
		cache:       cache,
	}
}

// RootOf 返回故事的根片段（最早创建的片段）
func (s *Service) RootOf(ctx context.Context, storyID string) (*entity.Segment, error) {
	segments, err := s.segments.ListByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, apperrors.ErrSegmentNotFound
	}
	return segments[0], nil
}

// AttachSegment 在事务内创建片段并连接到父片段。
// 新片段只能通过本操作进入图谱，保证除根外每个片段至少有一条入边。
func (s *Service) AttachSegment(ctx context.Context, segment *entity.Segment, parentID string) error {
	ctx, span := tracer.Start(ctx, "graph.AttachSegment",
		trace.WithAttributes(
			attribute.String("story_id", segment.StoryID),
			attribute.String("parent_id", parentID),
		))
	defer span.End()

	parent, err := s.segments.GetByID(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return apperrors.ErrSegmentNotFound
	}
	if parent.StoryID != segment.StoryID {
		return apperrors.New(apperrors.CodeInvalidEdge, "parent belongs to a different story")
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.segments.Create(ctx, segment); err != nil {
			return err
		}
		conn := entity.NewConnection(segment.StoryID, parentID, segment.ID)
		return s.connections.Create(ctx, conn)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.invalidateDump(ctx, segment.StoryID)
	return nil
}

// Connect 在两个既有片段间创建连接
func (s *Service) Connect(ctx context.Context, storyID, fromID, toID string) (*entity.Connection, error) {
	ctx, span := tracer.Start(ctx, "graph.Connect",
		trace.WithAttributes(
			attribute.String("story_id", storyID),
			attribute.String("from_id", fromID),
			attribute.String("to_id", toID),
		))
	defer span.End()

	if fromID == toID {
		return nil, apperrors.New(apperrors.CodeInvalidEdge, "self-loop is not allowed")
	}

	from, err := s.segments.GetByID(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.segments.GetByID(ctx, toID)
	if err != nil {
		return nil, err
	}
	if from == nil || to == nil {
		return nil, apperrors.ErrSegmentNotFound
	}
	if from.StoryID != storyID || to.StoryID != storyID {
		return nil, apperrors.New(apperrors.CodeInvalidEdge, "segments belong to a different story")
	}

	// 根校验、重复边校验与写入同事务，避免并发 Connect 重复通过校验
	conn := entity.NewConnection(storyID, fromID, toID)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		root, err := s.RootOf(ctx, storyID)
		if err != nil {
			return err
		}
		if toID == root.ID {
			return apperrors.New(apperrors.CodeInvalidEdge, "root segment cannot gain incoming edges")
		}

		existing, err := s.connections.ListFrom(ctx, fromID)
		if err != nil {
			return err
		}
		for _, c := range existing {
			if c.ToSegmentID == toID {
				return apperrors.New(apperrors.CodeInvalidEdge, "connection already exists")
			}
		}

		return s.connections.Create(ctx, conn)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.invalidateDump(ctx, storyID)
	return conn, nil
}

// ChildrenOf 返回片段的直接后继（按连接创建顺序）
func (s *Service) ChildrenOf(ctx context.Context, segmentID string) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "graph.ChildrenOf",
		trace.WithAttributes(attribute.String("segment_id", segmentID)))
	defer span.End()

	seg, err := s.segments.GetByID(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, apperrors.ErrSegmentNotFound
	}

	conns, err := s.connections.ListFrom(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return []*entity.Segment{}, nil
	}

	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ToSegmentID)
	}
	rows, err := s.segments.GetManyByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*entity.Segment, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	children := make([]*entity.Segment, 0, len(conns))
	for _, c := range conns {
		if child, ok := byID[c.ToSegmentID]; ok {
			children = append(children, child)
		}
	}
	return children, nil
}

// PathToRoot 返回从根到指定片段的路径（根在前）。
// 多个父节点时沿最早创建的入边回溯。
// 片段无法回溯到根（孤立或成环）时返回图谱断裂错误。
func (s *Service) PathToRoot(ctx context.Context, segmentID string) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "graph.PathToRoot",
		trace.WithAttributes(attribute.String("segment_id", segmentID)))
	defer span.End()

	seg, err := s.segments.GetByID(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, apperrors.ErrSegmentNotFound
	}

	root, err := s.RootOf(ctx, seg.StoryID)
	if err != nil {
		return nil, err
	}

	path := []*entity.Segment{seg}
	visited := map[string]bool{seg.ID: true}
	current := seg

	for current.ID != root.ID {
		incoming, err := s.connections.ListTo(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if len(incoming) == 0 {
			span.SetAttributes(attribute.Bool("disconnected", true))
			return nil, apperrors.ErrDisconnectedGraph
		}

		parentID := incoming[0].FromSegmentID
		if visited[parentID] {
			span.SetAttributes(attribute.Bool("cycle", true))
			return nil, apperrors.ErrDisconnectedGraph
		}

		parent, err := s.segments.GetByID(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, apperrors.ErrDisconnectedGraph
		}

		visited[parentID] = true
		path = append(path, parent)
		current = parent
	}

	// 反转为根在前
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Dump 故事图谱完整导出
type Dump struct {
	StoryID     string               `json:"story_id"`
	Segments    []*entity.Segment    `json:"segments"`
	Connections []*entity.Connection `json:"connections"`
}

// DumpStory 导出故事的全部片段与连接（经缓存）
func (s *Service) DumpStory(ctx context.Context, storyID string) (*Dump, error) {
	ctx, span := tracer.Start(ctx, "graph.DumpStory",
		trace.WithAttributes(attribute.String("story_id", storyID)))
	defer span.End()

	story, err := s.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, apperrors.ErrStoryNotFound
	}

	load := func() (interface{}, error) {
		segments, err := s.segments.ListByStory(ctx, storyID)
		if err != nil {
			return nil, err
		}
		connections, err := s.connections.ListByStory(ctx, storyID)
		if err != nil {
			return nil, err
		}
		return &Dump{
			StoryID:     storyID,
			Segments:    segments,
			Connections: connections,
		}, nil
	}

	if s.cache == nil {
		raw, err := load()
		if err != nil {
			return nil, err
		}
		return raw.(*Dump), nil
	}

	data, err := s.cache.GetOrLoadSafe(ctx, redis.StoryGraphKey(storyID), dumpCacheTTL, load)
	if err != nil {
		return nil, err
	}

	var dump Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, err
	}
	return &dump, nil
}

// invalidateDump 图谱变更后清理缓存，失败不影响主流程
func (s *Service) invalidateDump(ctx context.Context, storyID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateStory(ctx, storyID)
}
