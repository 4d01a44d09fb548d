package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/app"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/config"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/guardrail"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/service"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/vectorstore"
)

const defaultSeedBatch = 64

// cli holds flags shared by every subcommand.
type cli struct {
	jsonOut bool
	verbose bool
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "fundqa",
		Short: "Ask factual mutual fund questions against the local knowledge base",
		Long: `fundqa runs the same answer pipeline as the fundqad server from the command line.

Configuration is read from the environment and an optional .env file
(VECTOR_BACKEND, OLLAMA_URL, QDRANT_GRPC_URL, ...).

Examples:
  fundqa seed --file passages.json
  fundqa ask "What is the exit load of SBI Bluechip Fund?"
  fundqa check-query "Should I invest in HDFC Top 100?"`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print machine-readable JSON")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	root.AddCommand(
		c.askCommand(),
		c.checkQueryCommand(),
		c.checkResponseCommand(),
		c.seedCommand(),
	)
	return root
}

// build loads configuration and wires the pipeline, logging as text to the
// command's stderr.
func (c *cli) build(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.LogFormat = "text"
	if c.verbose {
		cfg.LogLevel = "debug"
	} else {
		cfg.LogLevel = "warn"
	}
	return app.New(cfg, app.NewLogger(cfg, cmd.ErrOrStderr()))
}

func (c *cli) guard(cmd *cobra.Command) (*guardrail.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.LogFormat = "text"
	cfg.LogLevel = "warn"
	return guardrail.Load(cfg.GuardrailTablePath, app.NewLogger(cfg, cmd.ErrOrStderr())), nil
}

type askOutput struct {
	Query           string                        `json:"query"`
	Answer          string                        `json:"answer"`
	Sources         []knowledge.Citation          `json:"sources"`
	ConfidenceScore float64                       `json:"confidence_score"`
	FallbackTier    knowledge.FallbackTier        `json:"fallback_tier"`
	Category        knowledge.InformationCategory `json:"category"`
	Blocked         bool                          `json:"blocked_by_guardrail"`
	Sanitized       bool                          `json:"sanitized"`
	ChunksRetrieved int                           `json:"retrieved_chunks_count"`
	TotalTimeMs     int64                         `json:"response_time_ms"`
}

func (c *cli) askCommand() *cobra.Command {
	var amc string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with citations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req := service.Request{Query: strings.Join(args, " ")}
			if amc != "" {
				req.Filters = map[string]string{"amc_name": amc}
			}
			res, err := a.Service.Answer(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("%s: %w", knowledge.ErrorKind(err), err)
			}

			out := askOutput{
				Query:           res.Query,
				Answer:          res.AnswerText,
				Sources:         res.Citations,
				ConfidenceScore: res.ConfidenceScore,
				FallbackTier:    res.FallbackTier,
				Category:        res.Category,
				Blocked:         res.BlockedByGuardrail,
				Sanitized:       res.Sanitized,
				ChunksRetrieved: res.ChunksRetrieved,
				TotalTimeMs:     res.TotalTimeMs,
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printAnswer(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&amc, "amc", "", "Restrict retrieval to one AMC (matches amc_name)")
	return cmd
}

func printAnswer(w io.Writer, out askOutput) {
	fmt.Fprintln(w, out.Answer)
	if len(out.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for i, s := range out.Sources {
			title := s.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(w, "  [%d] %s - %s (%s)\n", i+1, title, s.URL, s.SourceType)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "tier=%s confidence=%.2f chunks=%d time=%dms\n",
		out.FallbackTier, out.ConfidenceScore, out.ChunksRetrieved, out.TotalTimeMs)
}

type queryCheck struct {
	Safe      bool                 `json:"safe"`
	Violation *knowledge.Violation `json:"violation,omitempty"`
}

func (c *cli) checkQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-query <text>",
		Short: "Report whether a question asks for investment advice",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.guard(cmd)
			if err != nil {
				return err
			}
			safe, v := g.CheckQuery(strings.Join(args, " "))
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), queryCheck{Safe: safe, Violation: v})
			}
			w := cmd.OutOrStdout()
			if safe {
				fmt.Fprintln(w, "safe")
				return nil
			}
			fmt.Fprintf(w, "blocked: %s (matched %q)\n", v.Type, v.MatchedPattern)
			return nil
		},
	}
}

type responseCheck struct {
	Compliant  bool                  `json:"compliant"`
	Violations []knowledge.Violation `json:"violations"`
	Sanitized  string                `json:"sanitized"`
}

func (c *cli) checkResponseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-response <text>",
		Short: "Find advice or predictions in an answer and show the sanitized text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.guard(cmd)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			ok, violations := g.CheckResponse(text)
			out := responseCheck{
				Compliant:  ok,
				Violations: violations,
				Sanitized:  g.Sanitize(text, violations),
			}
			if out.Violations == nil {
				out.Violations = []knowledge.Violation{}
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			if ok {
				fmt.Fprintln(w, "compliant")
				return nil
			}
			for _, v := range violations {
				fmt.Fprintf(w, "%s [%s] %q\n", v.Type, v.Severity, v.Context)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, out.Sanitized)
			return nil
		},
	}
}

func (c *cli) seedCommand() *cobra.Command {
	var (
		file  string
		batch int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Embed and index passages from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			passages, err := vectorstore.ReadPassages(file)
			if err != nil {
				return err
			}
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := seed(cmd, a.Loader, passages, batch)
			if err != nil {
				return fmt.Errorf("seeded %d of %d passages: %w", n, len(passages), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d passages into %s collection %q\n",
				n, a.Config.VectorBackend, a.Config.QdrantCollection)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Passage file (JSON or YAML list)")
	cmd.Flags().IntVar(&batch, "batch", defaultSeedBatch, "Passages per index write")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// seed writes passages in batches and returns how many were stored.
func seed(cmd *cobra.Command, loader vectorstore.Loader, passages []vectorstore.Passage, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultSeedBatch
	}
	done := 0
	for start := 0; start < len(passages); start += batch {
		end := min(start+batch, len(passages))
		if err := loader.Add(cmd.Context(), passages[start:end]); err != nil {
			return done, err
		}
		done = end
	}
	return done, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
