package retrieval

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyscape/internal/domain/repository"
	"storyscape/pkg/metrics"
)

var tracer = otel.Tracer("retrieval")

// Retriever 在单个故事范围内做向量召回并解析为片段实体。
// 不同故事的片段互不可见：检索只命中查询所属故事的分区。
type Retriever struct {
	embedder Embedder
	vector   VectorIndex
	segments repository.SegmentRepository
}

func NewRetriever(embedder Embedder, vector VectorIndex, segments repository.SegmentRepository) *Retriever {
	return &Retriever{
		embedder: embedder,
		vector:   vector,
		segments: segments,
	}
}

// Retrieve 嵌入查询文本，在故事分区内检索最相近的 topK 个片段。
// 召回后丢弃已不可检索的片段（failed、尚未生成完文本等），不做回补。
func (r *Retriever) Retrieve(ctx context.Context, storyID, query string, topK int) ([]RetrievedSegment, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Retrieve",
		trace.WithAttributes(
			attribute.String("story_id", storyID),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	topK = ClampTopK(topK)

	queryVector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		span.RecordError(err)
		metrics.RetrievalTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	matches, err := r.vector.Search(ctx, storyID, queryVector, topK)
	if err != nil {
		span.RecordError(err)
		metrics.RetrievalTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(matches) == 0 {
		metrics.RetrievalTotal.WithLabelValues("success").Inc()
		metrics.RetrievalResultCount.Observe(0)
		return []RetrievedSegment{}, nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.SegmentID)
	}

	rows, err := r.segments.GetManyByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		metrics.RetrievalTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	byID := make(map[string]int, len(rows))
	for i, seg := range rows {
		byID[seg.ID] = i
	}

	// 保持向量检索的排序
	retrieved := make([]RetrievedSegment, 0, len(matches))
	for _, m := range matches {
		idx, ok := byID[m.SegmentID]
		if !ok {
			continue
		}
		seg := rows[idx]
		if seg.StoryID != storyID || !seg.Retrievable() {
			continue
		}
		retrieved = append(retrieved, RetrievedSegment{
			Segment:  seg,
			Distance: m.Distance,
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(retrieved)))
	metrics.RetrievalTotal.WithLabelValues("success").Inc()
	metrics.RetrievalResultCount.Observe(float64(len(retrieved)))
	return retrieved, nil
}
