package generation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyscape/internal/application/graph"
	"storyscape/internal/application/retrieval"
	"storyscape/internal/domain/entity"
	"storyscape/internal/domain/repository"
	"storyscape/internal/infrastructure/messaging"
	"storyscape/internal/infrastructure/persistence/milvus"
	"storyscape/internal/infrastructure/persistence/redis"
	apperrors "storyscape/pkg/errors"
	"storyscape/pkg/logger"
	"storyscape/pkg/metrics"
)

var tracer = otel.Tracer("generation")

// Orchestrator 片段生成编排器。
// 工作进程侧的失败不做进程内重试：状态认领（CAS）保证至少一次投递下
// 每个片段只被一个工作者推进，失败统一落到 failed 终态。
type Orchestrator struct {
	stories   repository.StoryRepository
	segments  repository.SegmentRepository
	graph     *graph.Service
	retriever *retrieval.Retriever
	augmenter *retrieval.Augmenter
	embedder  retrieval.Embedder
	vector    retrieval.VectorIndex
	textGen   TextGenerator
	imageGen  ImageGenerator
	producer  *messaging.Producer
	tx        repository.Transactor
	cache     *redis.Cache
	topK      int
}

func NewOrchestrator(
	stories repository.StoryRepository,
	segments repository.SegmentRepository,
	graphSvc *graph.Service,
	retriever *retrieval.Retriever,
	augmenter *retrieval.Augmenter,
	embedder retrieval.Embedder,
	vector retrieval.VectorIndex,
	textGen TextGenerator,
	imageGen ImageGenerator,
	producer *messaging.Producer,
	tx repository.Transactor,
	cache *redis.Cache,
	topK int,
) *Orchestrator {
	return &Orchestrator{
		stories:   stories,
		segments:  segments,
		graph:     graphSvc,
		retriever: retriever,
		augmenter: augmenter,
		embedder:  embedder,
		vector:    vector,
		textGen:   textGen,
		imageGen:  imageGen,
		producer:  producer,
		tx:        tx,
		cache:     cache,
		topK:      topK,
	}
}

// CreateStory 创建故事及其根片段，根片段进入生成队列
func (o *Orchestrator) CreateStory(ctx context.Context, ownerID, title, initialPrompt string) (*entity.Story, *entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "generation.CreateStory")
	defer span.End()

	story := entity.NewStory(ownerID, title, initialPrompt)
	root := entity.NewSegment(story.ID, initialPrompt)

	err := o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := o.stories.Create(ctx, story); err != nil {
			return err
		}
		return o.segments.Create(ctx, root)
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	if _, err := o.producer.PublishSegmentGen(ctx, &messaging.SegmentGenMessage{
		SegmentID:  root.ID,
		StoryID:    story.ID,
		UserPrompt: initialPrompt,
	}); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to enqueue root segment generation", err,
			"story_id", story.ID, "segment_id", root.ID)
	}

	return story, root, nil
}

// CreateSegment 在父片段下创建新的待生成片段并入队
func (o *Orchestrator) CreateSegment(ctx context.Context, storyID, parentID, userPrompt string) (*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "generation.CreateSegment",
		trace.WithAttributes(
			attribute.String("story_id", storyID),
			attribute.String("parent_id", parentID),
		))
	defer span.End()

	story, err := o.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, apperrors.ErrStoryNotFound
	}

	segment := entity.NewSegment(storyID, userPrompt)
	if err := o.graph.AttachSegment(ctx, segment, parentID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if _, err := o.producer.PublishSegmentGen(ctx, &messaging.SegmentGenMessage{
		SegmentID:  segment.ID,
		StoryID:    storyID,
		UserPrompt: userPrompt,
	}); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to enqueue segment generation", err,
			"story_id", storyID, "segment_id", segment.ID)
	}

	return segment, nil
}

// RequestImage 为片段发起图像生成。文本未就绪时拒绝。style 可选，空串表示默认画风。
func (o *Orchestrator) RequestImage(ctx context.Context, segmentID, style string) error {
	ctx, span := tracer.Start(ctx, "generation.RequestImage",
		trace.WithAttributes(attribute.String("segment_id", segmentID)))
	defer span.End()

	segment, err := o.segments.GetByID(ctx, segmentID)
	if err != nil {
		return err
	}
	if segment == nil {
		return apperrors.ErrSegmentNotFound
	}
	if !segment.ImageRequestable() {
		return apperrors.New(apperrors.CodeImageNotReady, "segment text is not ready for image generation")
	}

	_, err = o.producer.PublishImageGen(ctx, &messaging.ImageGenMessage{
		SegmentID: segmentID,
		StoryID:   segment.StoryID,
		Style:     style,
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// EditSegmentText 人工修改片段文本，向量标记为失效并入队重嵌入
func (o *Orchestrator) EditSegmentText(ctx context.Context, segmentID, content string) (*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "generation.EditSegmentText",
		trace.WithAttributes(attribute.String("segment_id", segmentID)))
	defer span.End()

	segment, err := o.segments.GetByID(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if segment == nil {
		return nil, apperrors.ErrSegmentNotFound
	}
	if !segment.Editable() {
		return nil, apperrors.New(apperrors.CodeSegmentNotEditable, "segment is not editable in current status")
	}

	if err := o.segments.UpdateText(ctx, segmentID, content); err != nil {
		span.RecordError(err)
		return nil, err
	}
	segment.ContentText = content
	segment.EmbeddedAt = nil

	if _, err := o.producer.PublishReembed(ctx, &messaging.ReembedMessage{
		SegmentID: segmentID,
		StoryID:   segment.StoryID,
	}); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to enqueue reembed", err, "segment_id", segmentID)
	}

	return segment, nil
}

// ReembedStory 为故事的全部可检索片段入队重嵌入（嵌入模型版本升级后使用）
func (o *Orchestrator) ReembedStory(ctx context.Context, storyID string) (int, error) {
	ctx, span := tracer.Start(ctx, "generation.ReembedStory",
		trace.WithAttributes(attribute.String("story_id", storyID)))
	defer span.End()

	story, err := o.stories.GetByID(ctx, storyID)
	if err != nil {
		return 0, err
	}
	if story == nil {
		return 0, apperrors.ErrStoryNotFound
	}

	segments, err := o.segments.ListRetrievableByStory(ctx, storyID)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, seg := range segments {
		if _, err := o.producer.PublishReembed(ctx, &messaging.ReembedMessage{
			SegmentID: seg.ID,
			StoryID:   storyID,
		}); err != nil {
			span.RecordError(err)
			logger.Error(ctx, "failed to enqueue reembed", err, "segment_id", seg.ID)
			continue
		}
		enqueued++
	}

	span.SetAttributes(attribute.Int("enqueued", enqueued))
	return enqueued, nil
}

// DeleteStory 删除故事及其片段、连接与向量
func (o *Orchestrator) DeleteStory(ctx context.Context, storyID string) error {
	ctx, span := tracer.Start(ctx, "generation.DeleteStory",
		trace.WithAttributes(attribute.String("story_id", storyID)))
	defer span.End()

	story, err := o.stories.GetByID(ctx, storyID)
	if err != nil {
		return err
	}
	if story == nil {
		return apperrors.ErrStoryNotFound
	}

	if err := o.stories.Delete(ctx, storyID); err != nil {
		span.RecordError(err)
		return err
	}

	if err := o.vector.DropStory(ctx, storyID); err != nil {
		// 向量清理失败不阻塞删除，留待人工修复
		span.RecordError(err)
		logger.Error(ctx, "failed to drop story vectors", err, "story_id", storyID)
	}
	if o.cache != nil {
		_ = o.cache.InvalidateStory(ctx, storyID)
	}
	return nil
}

// RunTextGeneration 执行片段文本生成流水线：
// 认领 → 检索 → 增强 → 生成 → 落库 → 嵌入 → 入索引 → 完成。
// 认领失败说明消息重复投递或片段已被处理，按无操作返回。
func (o *Orchestrator) RunTextGeneration(ctx context.Context, storyID, segmentID string) error {
	ctx, span := tracer.Start(ctx, "generation.RunTextGeneration",
		trace.WithAttributes(
			attribute.String("story_id", storyID),
			attribute.String("segment_id", segmentID),
		))
	defer span.End()

	start := time.Now()

	claimed, err := o.segments.ClaimStatus(ctx, segmentID,
		[]entity.SegmentStatus{entity.SegmentStatusPending},
		entity.SegmentStatusGeneratingText)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !claimed {
		metrics.SegmentGenerationTotal.WithLabelValues("text", "conflict").Inc()
		logger.Info(ctx, "text generation already claimed, skipping",
			"segment_id", segmentID)
		return nil
	}

	segment, err := o.segments.GetByID(ctx, segmentID)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "text", err)
	}
	if segment == nil {
		metrics.SegmentGenerationTotal.WithLabelValues("text", "failed").Inc()
		logger.Warn(ctx, "claimed segment no longer exists", "segment_id", segmentID)
		return nil
	}

	retrieved, err := o.retriever.Retrieve(ctx, storyID, segment.UserPrompt, o.topK)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "text", err)
	}

	userPrompt := o.augmenter.BuildUserPrompt(retrieved, segment.UserPrompt)
	content, err := o.textGen.Generate(ctx, o.augmenter.SystemPrompt(), userPrompt)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "text", err)
	}

	if err := o.segments.SetContent(ctx, segmentID, content); err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "text", err)
	}

	advanced, err := o.segments.ClaimStatus(ctx, segmentID,
		[]entity.SegmentStatus{entity.SegmentStatusGeneratingText},
		entity.SegmentStatusTextReady)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "text", err)
	}
	if !advanced {
		return o.abortPipeline(ctx, segmentID, "text")
	}

	if err := o.embedSegment(ctx, segment, content); err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "text", err)
	}

	advanced, err = o.segments.ClaimStatus(ctx, segmentID,
		[]entity.SegmentStatus{entity.SegmentStatusTextReady},
		entity.SegmentStatusComplete)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "text", err)
	}
	if !advanced {
		return o.abortPipeline(ctx, segmentID, "text")
	}

	metrics.SegmentGenerationTotal.WithLabelValues("text", "completed").Inc()
	metrics.SegmentGenerationDuration.WithLabelValues("text").Observe(time.Since(start).Seconds())
	logger.Info(ctx, "segment text generated",
		"segment_id", segmentID,
		"context_segments", len(retrieved),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// RunImageGeneration 执行片段图像生成流水线
func (o *Orchestrator) RunImageGeneration(ctx context.Context, storyID, segmentID, style string) error {
	ctx, span := tracer.Start(ctx, "generation.RunImageGeneration",
		trace.WithAttributes(
			attribute.String("story_id", storyID),
			attribute.String("segment_id", segmentID),
		))
	defer span.End()

	start := time.Now()

	claimed, err := o.segments.ClaimStatus(ctx, segmentID,
		[]entity.SegmentStatus{entity.SegmentStatusTextReady, entity.SegmentStatusComplete},
		entity.SegmentStatusGeneratingImage)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !claimed {
		metrics.SegmentGenerationTotal.WithLabelValues("image", "conflict").Inc()
		logger.Info(ctx, "image generation already claimed, skipping",
			"segment_id", segmentID)
		return nil
	}

	segment, err := o.segments.GetByID(ctx, segmentID)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "image", err)
	}
	if segment == nil {
		metrics.SegmentGenerationTotal.WithLabelValues("image", "failed").Inc()
		logger.Warn(ctx, "claimed segment no longer exists", "segment_id", segmentID)
		return nil
	}

	imageRef, err := o.imageGen.Generate(ctx, segment.ContentText, style)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "image", err)
	}

	if err := o.segments.SetImageRef(ctx, segmentID, imageRef); err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "image", err)
	}

	advanced, err := o.segments.ClaimStatus(ctx, segmentID,
		[]entity.SegmentStatus{entity.SegmentStatusGeneratingImage},
		entity.SegmentStatusImageReady)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "image", err)
	}
	if !advanced {
		return o.abortPipeline(ctx, segmentID, "image")
	}

	advanced, err = o.segments.ClaimStatus(ctx, segmentID,
		[]entity.SegmentStatus{entity.SegmentStatusImageReady},
		entity.SegmentStatusComplete)
	if err != nil {
		span.RecordError(err)
		return o.failSegment(ctx, segmentID, "image", err)
	}
	if !advanced {
		return o.abortPipeline(ctx, segmentID, "image")
	}

	metrics.SegmentGenerationTotal.WithLabelValues("image", "completed").Inc()
	metrics.SegmentGenerationDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	logger.Info(ctx, "segment image generated",
		"segment_id", segmentID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// RunReembed 重算片段向量并覆盖写入索引。
// 操作幂等，失败返回错误交由队列按退避重投。
func (o *Orchestrator) RunReembed(ctx context.Context, storyID, segmentID string) error {
	ctx, span := tracer.Start(ctx, "generation.RunReembed",
		trace.WithAttributes(
			attribute.String("story_id", storyID),
			attribute.String("segment_id", segmentID),
		))
	defer span.End()

	segment, err := o.segments.GetByID(ctx, segmentID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if segment == nil || !segment.Retrievable() {
		logger.Info(ctx, "segment not eligible for reembed, skipping", "segment_id", segmentID)
		return nil
	}

	if err := o.embedSegment(ctx, segment, segment.ContentText); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// embedSegment 嵌入片段文本并覆盖写入向量索引
func (o *Orchestrator) embedSegment(ctx context.Context, segment *entity.Segment, content string) error {
	vector, err := o.embedder.EmbedOne(ctx, content)
	if err != nil {
		return err
	}

	if err := o.vector.Upsert(ctx, &milvus.SegmentVector{
		ID:          segment.ID,
		Vector:      vector,
		StoryID:     segment.StoryID,
		CreatedAt:   segment.CreatedAt.UnixMicro(),
		TextContent: content,
	}); err != nil {
		return err
	}

	return o.segments.MarkEmbedded(ctx, segment.ID, time.Now())
}

// abortPipeline 流水线中途状态被他方改写（并发置失败、片段被删）时放弃推进。
// 不覆盖既有终态，消息按成功确认。
func (o *Orchestrator) abortPipeline(ctx context.Context, segmentID, kind string) error {
	metrics.SegmentGenerationTotal.WithLabelValues(kind, "conflict").Inc()
	logger.Warn(ctx, "segment status changed mid-pipeline, aborting",
		"segment_id", segmentID, "kind", kind)
	return nil
}

// failSegment 将片段置为失败终态并吞掉错误（消息按成功确认，不再重投）
func (o *Orchestrator) failSegment(ctx context.Context, segmentID, kind string, cause error) error {
	metrics.SegmentGenerationTotal.WithLabelValues(kind, "failed").Inc()
	logger.Error(ctx, "segment generation failed", cause,
		"segment_id", segmentID, "kind", kind)

	if err := o.segments.MarkFailed(ctx, segmentID, cause.Error()); err != nil {
		logger.Error(ctx, "failed to mark segment failed", err, "segment_id", segmentID)
		return err
	}
	return nil
}
