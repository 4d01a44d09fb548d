package service

import (
	"fmt"
	"strings"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// SystemPrompt frames every generation.
const SystemPrompt = "You are a factual FAQ assistant for mutual fund information. " +
	"Your role is to provide accurate, concise answers based ONLY on the provided context."

// GenericFallbackText is returned when no passage is relevant enough.
const GenericFallbackText = "I don't have specific information about this in my knowledge base. " +
	"I can only answer factual questions about mutual fund schemes using " +
	"verified sources from official AMC, SEBI, and AMFI websites. " +
	"Please try rephrasing your question or ask about specific fund details like " +
	"expense ratio, exit load, minimum SIP, or lock-in period."

const guidelines = `STRICT GUIDELINES:
1. Answer ONLY using information from the context provided below
2. Be factual and precise - no speculation or assumptions
3. Keep responses concise (2-4 sentences maximum)
4. Reference sources using [Source N] notation when stating facts
5. If the context doesn't contain enough information to answer, say "I don't have specific information about this in my knowledge base."
6. NEVER provide investment advice, recommendations, or predictions
7. NEVER suggest buying, selling, or holding any mutual fund
8. Focus on factual data only: expense ratios, exit loads, minimum SIP amounts, lock-in periods, fund managers, benchmarks, etc.`

// BuildPrompt assembles the generation prompt from the context window, the
// citations the answer may reference and the question.
func BuildPrompt(query, contextWindow string, citations []knowledge.Citation) string {
	var sb strings.Builder

	sb.WriteString(guidelines)
	sb.WriteString("\n\n")

	sb.WriteString("CONTEXT FROM KNOWLEDGE BASE:\n")
	sb.WriteString(contextWindow)
	sb.WriteString("\n\n")

	sb.WriteString("AVAILABLE SOURCES:\n")
	for i, c := range citations {
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "[%d] %s - %s\n", i+1, title, c.URL)
	}
	sb.WriteString("\n")

	sb.WriteString("USER QUESTION:\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("FACTUAL ANSWER (remember: no advice, only facts with source references):")

	return sb.String()
}

// postProcess trims the completion and removes code fences.
func postProcess(text string) string {
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
