package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// CharsPerToken approximates how many characters one model token covers.
const CharsPerToken = 4

const ellipsis = "..."

// ContextWindow concatenates candidate texts as "[Source N] text" blocks
// until the next block would exceed maxTokens*CharsPerToken characters.
// Blocks are never split, except that a first block that alone exceeds the
// budget is cut at the boundary. maxTokens <= 0 means no limit.
func ContextWindow(candidates []knowledge.Candidate, maxTokens int) string {
	maxChars := maxTokens * CharsPerToken

	var sb strings.Builder
	for i, c := range candidates {
		part := fmt.Sprintf("[Source %d] %s\n\n", i+1, strings.TrimSpace(c.Text))
		if maxChars > 0 && sb.Len()+len(part) > maxChars {
			if sb.Len() == 0 {
				sb.WriteString(truncate(part, maxChars))
			}
			break
		}
		sb.WriteString(part)
	}
	return strings.TrimSpace(sb.String())
}

// truncate cuts s to at most limit bytes including the ellipsis, on a rune
// boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(ellipsis)
	if cut <= 0 {
		return ellipsis[:limit]
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
