package retrieval

import (
	"fmt"
	"strings"
)

const systemPrompt = "你是交互式分支故事的续写引擎。根据给出的故事上下文片段续写下一段情节，" +
	"保持人物、设定与既有情节一致。只输出故事正文，不要输出解释或元信息。"

// Augmenter 将召回结果组装为模型提示词。
// 上下文按相关性升序排列，最相关的片段紧邻用户指令（模型对末尾内容最敏感）。
type Augmenter struct {
	maxSegments        int
	maxRunesPerSegment int
}

func NewAugmenter(maxSegments, maxRunesPerSegment int) *Augmenter {
	if maxSegments <= 0 {
		maxSegments = MaxTopK
	}
	if maxRunesPerSegment <= 0 {
		maxRunesPerSegment = 800
	}
	return &Augmenter{
		maxSegments:        maxSegments,
		maxRunesPerSegment: maxRunesPerSegment,
	}
}

// SystemPrompt 返回系统提示词
func (a *Augmenter) SystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt 组装用户提示词。
// retrieved 按相关性降序传入（检索输出顺序），组装时反转。
// 无召回结果时只包含用户指令。
func (a *Augmenter) BuildUserPrompt(retrieved []RetrievedSegment, userPrompt string) string {
	userPrompt = strings.TrimSpace(userPrompt)

	n := len(retrieved)
	if n > a.maxSegments {
		retrieved = retrieved[:a.maxSegments]
		n = a.maxSegments
	}

	lines := make([]string, 0, n+4)
	if n > 0 {
		lines = append(lines, "【故事上下文（按相关性从低到高）】")
		for i := n - 1; i >= 0; i-- {
			s := retrieved[i]
			txt := compactOneLine(s.Segment.ContentText)
			txt = truncateRunes(txt, a.maxRunesPerSegment)
			if strings.TrimSpace(txt) == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("[%d] %s", n-i, txt))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "【续写指令】")
	lines = append(lines, userPrompt)

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func compactOneLine(s string) string {
	out := strings.ReplaceAll(s, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.TrimSpace(out)
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
