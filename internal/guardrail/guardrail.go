// Package guardrail screens user questions and generated answers for
// investment advice, recommendations and predictions.
//
// An Engine is compiled once from a Patterns table and is safe for concurrent
// use; it holds no per-request state.
package guardrail

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

const (
	safeResponseTemplate = "I cannot provide investment advice or recommendations. " +
		"I can only share factual information about mutual fund schemes, such as " +
		"expense ratios, exit loads, minimum SIP amounts, lock-in periods, and other " +
		"objective details. Please rephrase your question to ask about specific " +
		"factual information."

	fallbackSentence = "I can only provide factual information about mutual funds. " +
		"I cannot offer investment advice or recommendations."

	contextWindow = 50
)

// sentenceSplit ends a sentence at terminal punctuation followed by space or
// the end of text, so figures such as 10.5% stay in one sentence.
var sentenceSplit = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// Engine applies a compiled compliance table.
type Engine struct {
	queryPatterns   []*regexp.Regexp
	responseRules   []responseRule
	keywords        []keywordRule
	factualPatterns []*regexp.Regexp
	factualWindow   int
	maxViolations   int
}

type keywordRule struct {
	keyword string
	re      *regexp.Regexp
}

// New compiles the built-in table.
func New() *Engine {
	e, err := Compile(DefaultPatterns())
	if err != nil {
		panic("guardrail: default table does not compile: " + err.Error())
	}
	return e
}

// Compile builds an Engine from p. It fails with knowledge.ErrConfiguration
// when an expression does not compile.
func Compile(p Patterns) (*Engine, error) {
	queries, err := compileAll(p.QueryPatterns)
	if err != nil {
		return nil, err
	}
	rules, err := compileRules(p.ResponsePatterns)
	if err != nil {
		return nil, err
	}
	factual, err := compileAll(p.FactualPatterns)
	if err != nil {
		return nil, err
	}

	keywords := make([]keywordRule, 0, len(p.AdviceKeywords))
	for _, kw := range p.AdviceKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		keywords = append(keywords, keywordRule{
			keyword: kw,
			re:      regexp.MustCompile("(?i)" + regexp.QuoteMeta(kw)),
		})
	}

	window := p.FactualWindow
	if window <= 0 {
		window = contextWindow
	}
	maxViolations := p.MaxViolations
	if maxViolations <= 0 {
		maxViolations = 3
	}

	return &Engine{
		queryPatterns:   queries,
		responseRules:   rules,
		keywords:        keywords,
		factualPatterns: factual,
		factualWindow:   window,
		maxViolations:   maxViolations,
	}, nil
}

// CheckQuery reports whether text is safe to answer. An unsafe query comes
// back with the first advice-seeking match.
func (e *Engine) CheckQuery(text string) (bool, *knowledge.Violation) {
	for _, re := range e.queryPatterns {
		match := re.FindString(text)
		if match == "" {
			continue
		}
		return false, &knowledge.Violation{
			Type:           knowledge.ViolationInvestmentAdvice,
			MatchedPattern: strings.ToLower(match),
			Context:        text,
			Severity:       knowledge.SeverityHigh,
		}
	}
	return true, nil
}

// CheckResponse scans a generated answer. Keyword hits are always reported;
// pattern hits are skipped when a factual indicator appears near them.
func (e *Engine) CheckResponse(text string) (bool, []knowledge.Violation) {
	var violations []knowledge.Violation

	for _, kw := range e.keywords {
		loc := kw.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		violations = append(violations, knowledge.Violation{
			Type:           knowledge.ViolationInvestmentAdvice,
			MatchedPattern: kw.keyword,
			Context:        excerpt(text, loc[0], loc[1], contextWindow),
			Severity:       knowledge.SeverityHigh,
		})
	}

	for _, rule := range e.responseRules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			if e.isFactual(text, loc[0], loc[1]) {
				continue
			}
			violations = append(violations, knowledge.Violation{
				Type:           rule.typ,
				MatchedPattern: text[loc[0]:loc[1]],
				Context:        excerpt(text, loc[0], loc[1], contextWindow),
				Severity:       rule.severity,
			})
		}
	}

	return len(violations) == 0, violations
}

// Sanitize removes the sentences that carry violations. With no violations
// the text is returned unchanged; with too many, or when nothing survives,
// the fallback sentence is returned instead.
func (e *Engine) Sanitize(text string, violations []knowledge.Violation) string {
	if len(violations) == 0 {
		return text
	}
	if len(violations) >= e.maxViolations {
		return fallbackSentence
	}

	needles := make([]string, 0, len(violations))
	for _, v := range violations {
		if p := strings.ToLower(v.MatchedPattern); p != "" {
			needles = append(needles, p)
		}
	}

	var kept []string
	for _, sentence := range sentenceSplit.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		flagged := false
		for _, n := range needles {
			if strings.Contains(lower, n) {
				flagged = true
				break
			}
		}
		if !flagged {
			kept = append(kept, sentence)
		}
	}

	if len(kept) == 0 {
		return fallbackSentence
	}
	return strings.Join(kept, ". ") + "."
}

// SafeResponseTemplate is the answer given to advice-seeking questions.
func (e *Engine) SafeResponseTemplate() string {
	return safeResponseTemplate
}

// FallbackSentence is the answer used when a response cannot be salvaged.
func (e *Engine) FallbackSentence() string {
	return fallbackSentence
}

func (e *Engine) isFactual(text string, start, end int) bool {
	lo, hi := clampWindow(text, start, end, e.factualWindow)
	window := text[lo:hi]
	for _, re := range e.factualPatterns {
		if re.MatchString(window) {
			return true
		}
	}
	return false
}

// excerpt returns the match with up to window characters on each side,
// marking truncated ends with an ellipsis.
func excerpt(text string, start, end, window int) string {
	lo, hi := clampWindow(text, start, end, window)
	out := text[lo:hi]
	if lo > 0 {
		out = "..." + out
	}
	if hi < len(text) {
		out += "..."
	}
	return out
}

func clampWindow(text string, start, end, window int) (int, int) {
	lo := max(0, start-window)
	hi := min(len(text), end+window)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return lo, hi
}
