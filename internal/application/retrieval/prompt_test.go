package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyscape/internal/domain/entity"
)

func retrievedWith(texts ...string) []RetrievedSegment {
	out := make([]RetrievedSegment, 0, len(texts))
	for i, txt := range texts {
		seg := entity.NewSegment("story-1", "prompt")
		seg.ContentText = txt
		out = append(out, RetrievedSegment{Segment: seg, Distance: float64(i) * 0.1})
	}
	return out
}

func TestBuildUserPromptMostRelevantLast(t *testing.T) {
	a := NewAugmenter(5, 400)

	// 检索输出按相关性降序：most 在前
	retrieved := retrievedWith("most relevant", "middle", "least relevant")
	prompt := a.BuildUserPrompt(retrieved, "continue the story")

	iLeast := strings.Index(prompt, "least relevant")
	iMiddle := strings.Index(prompt, "middle")
	iMost := strings.Index(prompt, "most relevant")
	iInstr := strings.Index(prompt, "continue the story")

	require.NotEqual(t, -1, iLeast)
	require.NotEqual(t, -1, iMost)

	// 组装后按相关性升序：最相关片段紧邻用户指令
	assert.Less(t, iLeast, iMiddle)
	assert.Less(t, iMiddle, iMost)
	assert.Less(t, iMost, iInstr)
}

func TestBuildUserPromptDeterministic(t *testing.T) {
	a := NewAugmenter(5, 400)
	retrieved := retrievedWith("alpha", "beta")

	p1 := a.BuildUserPrompt(retrieved, "go on")
	p2 := a.BuildUserPrompt(retrieved, "go on")
	assert.Equal(t, p1, p2)
}

func TestBuildUserPromptNoContext(t *testing.T) {
	a := NewAugmenter(5, 400)

	prompt := a.BuildUserPrompt(nil, "start the story")
	assert.NotContains(t, prompt, "故事上下文")
	assert.Contains(t, prompt, "start the story")
}

func TestBuildUserPromptTruncatesAndCaps(t *testing.T) {
	a := NewAugmenter(2, 10)

	retrieved := retrievedWith(
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"bbb",
		"ccc should be dropped",
	)
	prompt := a.BuildUserPrompt(retrieved, "next")

	assert.NotContains(t, prompt, "ccc should be dropped")
	assert.Contains(t, prompt, "bbb")
	assert.NotContains(t, prompt, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
}

func TestBuildUserPromptFlattensNewlines(t *testing.T) {
	a := NewAugmenter(5, 400)

	seg := entity.NewSegment("story-1", "prompt")
	seg.ContentText = "line one\nline two"
	prompt := a.BuildUserPrompt([]RetrievedSegment{{Segment: seg}}, "next")

	assert.Contains(t, prompt, "line one line two")
}
