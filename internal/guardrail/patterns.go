package guardrail

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// Patterns is the tunable compliance table. All expressions are matched
// case-insensitively.
type Patterns struct {
	// QueryPatterns detect advice-seeking questions.
	QueryPatterns []string `yaml:"query_patterns" json:"query_patterns"`
	// ResponsePatterns detect advisory language in generated answers.
	ResponsePatterns []PatternRule `yaml:"response_patterns" json:"response_patterns"`
	// AdviceKeywords are literal phrases that always count as advice.
	AdviceKeywords []string `yaml:"advice_keywords" json:"advice_keywords"`
	// FactualPatterns exempt a response pattern match when found near it.
	FactualPatterns []string `yaml:"factual_patterns" json:"factual_patterns"`
	// FactualWindow is the number of characters inspected on each side of a match.
	FactualWindow int `yaml:"factual_window" json:"factual_window"`
	// MaxViolations is the count at which Sanitize gives up and returns the fallback sentence.
	MaxViolations int `yaml:"max_violations" json:"max_violations"`
}

// PatternRule is a response pattern tagged with the finding it produces.
type PatternRule struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Type     string `yaml:"type" json:"type"`
	Severity string `yaml:"severity" json:"severity"`
}

// DefaultPatterns returns the built-in compliance table.
func DefaultPatterns() Patterns {
	return Patterns{
		QueryPatterns: []string{
			`\bshould i (buy|invest|sell|hold)\b`,
			`\bwhat (should|must) i (do|buy|invest)\b`,
			`\b(which|what) (fund|scheme).{0,30}(best|better|recommend)\b`,
			`\b(help me|advise me|recommend|suggest).{0,30}(invest|fund)\b`,
			`\bis it (good|advisable|wise) to (buy|invest)\b`,
		},
		ResponsePatterns: []PatternRule{
			{Pattern: `\b(should|must|need to)\s+(buy|invest|purchase|sell|hold|exit)\b`, Type: "RECOMMENDATION", Severity: "high"},
			{Pattern: `\b(recommend|suggests?|advise)\s+.{0,20}\b(buy|invest|sell)\b`, Type: "RECOMMENDATION", Severity: "high"},
			{Pattern: `\b(better|best|good|great|excellent)\s+(investment|choice|option|fund)\b`, Type: "RECOMMENDATION", Severity: "high"},
			{Pattern: `\b(go for|opt for|choose)\s+.{0,20}\bfund\b`, Type: "RECOMMENDATION", Severity: "high"},
			{Pattern: `\bi (suggest|recommend|advise|think you should)\b`, Type: "PERSONAL_OPINION", Severity: "high"},
			{Pattern: `\byou (should|must|need to|ought to)\b`, Type: "RECOMMENDATION", Severity: "high"},
			{Pattern: `\bit('s| is) (advisable|recommended|suggested)\b`, Type: "RECOMMENDATION", Severity: "high"},
			{Pattern: `\b(consider|try) (buying|investing|purchasing)\b`, Type: "RECOMMENDATION", Severity: "high"},
			{Pattern: `\b(will|going to|expected to)\s+(grow|increase|rise|perform|return)\b`, Type: "PREDICTION", Severity: "high"},
			{Pattern: `\b(predict|forecast|expect).{0,30}(return|growth|performance)\b`, Type: "PREDICTION", Severity: "high"},
			{Pattern: `\blikely to (outperform|beat|exceed)\b`, Type: "PREDICTION", Severity: "high"},
			{Pattern: `\b(good|bad|poor|excellent|superior|inferior)\s+(performance|returns?)\b`, Type: "PERSONAL_OPINION", Severity: "medium"},
			{Pattern: `\b(overvalued|undervalued|overpriced|underpriced)\b`, Type: "PERSONAL_OPINION", Severity: "medium"},
			{Pattern: `\b(strong|weak)\s+(buy|sell|hold)\b`, Type: "RECOMMENDATION", Severity: "high"},
		},
		AdviceKeywords: []string{
			"should buy", "should invest", "should sell", "should hold",
			"i recommend", "i suggest", "i advise",
			"my recommendation", "my suggestion",
			"best choice", "good investment", "bad investment", "better option",
			"optimal choice", "ideal fund", "perfect for",
			"suitable for you", "right for you",
			"avoid this", "stay away", "go ahead",
			"definitely buy", "definitely invest",
		},
		FactualPatterns: []string{
			`\b(expense ratio|exit load|minimum sip|lock-in period|nav|aum)\b`,
			`\b(fund manager|benchmark|category|type|rating)\b`,
			`\b(historical|past|previous)\s+(return|performance)\b`,
			`\briskometer\s+(level|rating)\b`,
			`\b(available|offered|provided)\s+by\b`,
		},
		FactualWindow: 50,
		MaxViolations: 3,
	}
}

// ParsePatterns decodes a YAML or JSON compliance table. Sections left empty
// keep their built-in defaults.
func ParsePatterns(data []byte) (Patterns, error) {
	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Patterns{}, fmt.Errorf("%w: decoding guardrail table: %w", knowledge.ErrConfiguration, err)
	}

	def := DefaultPatterns()
	if len(p.QueryPatterns) == 0 {
		p.QueryPatterns = def.QueryPatterns
	}
	if len(p.ResponsePatterns) == 0 {
		p.ResponsePatterns = def.ResponsePatterns
	}
	if len(p.AdviceKeywords) == 0 {
		p.AdviceKeywords = def.AdviceKeywords
	}
	if len(p.FactualPatterns) == 0 {
		p.FactualPatterns = def.FactualPatterns
	}
	if p.FactualWindow <= 0 {
		p.FactualWindow = def.FactualWindow
	}
	if p.MaxViolations <= 0 {
		p.MaxViolations = def.MaxViolations
	}
	return p, nil
}

// LoadPatterns reads the table at path. An empty path, an unreadable file or
// a malformed table yields the built-in defaults.
func LoadPatterns(path string, logger *slog.Logger) Patterns {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultPatterns()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("guardrail table not readable, using defaults", "path", path, "error", err)
		return DefaultPatterns()
	}

	p, err := ParsePatterns(data)
	if err != nil {
		logger.Warn("guardrail table invalid, using defaults", "path", path, "error", err)
		return DefaultPatterns()
	}
	return p
}

// Load compiles the table at path. A table that parses but does not compile
// is logged and replaced by the built-in one, so a bad override never stops
// the process.
func Load(path string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e, err := Compile(LoadPatterns(path, logger))
	if err != nil {
		logger.Warn("guardrail table does not compile, using defaults", "path", path, "error", err)
		return New()
	}
	return e
}

type responseRule struct {
	re       *regexp.Regexp
	typ      knowledge.ViolationType
	severity knowledge.Severity
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := compileFold(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func compileRules(rules []PatternRule) ([]responseRule, error) {
	out := make([]responseRule, 0, len(rules))
	for _, r := range rules {
		re, err := compileFold(r.Pattern)
		if err != nil {
			return nil, err
		}

		typ := knowledge.ViolationRecommendation
		if r.Type != "" {
			if err := typ.UnmarshalText([]byte(r.Type)); err != nil {
				return nil, fmt.Errorf("%w: rule %q: %w", knowledge.ErrConfiguration, r.Pattern, err)
			}
		}
		var sev knowledge.Severity
		if err := sev.UnmarshalText([]byte(r.Severity)); err != nil {
			return nil, fmt.Errorf("%w: rule %q: %w", knowledge.ErrConfiguration, r.Pattern, err)
		}

		out = append(out, responseRule{re: re, typ: typ, severity: sev})
	}
	return out, nil
}

func compileFold(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %w", knowledge.ErrConfiguration, pattern, err)
	}
	return re, nil
}
