package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulegraph/internal/catalog"
	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/engine"
	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/remote"
	"github.com/roach88/rulegraph/internal/store"
)

// RulesOptions holds flags shared by the rules subcommands.
type RulesOptions struct {
	*RootOptions
	Database string
	Limit    int
	Index    int
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect stored rules and submit rule graphs",
		Long: `Inspect the rules and the submission journal of a development backend
database, or submit a saved rule graph to a running backend.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides backend.database)")

	cmd.AddCommand(newRulesListCommand(opts))
	cmd.AddCommand(newRulesShowCommand(opts))
	cmd.AddCommand(newRulesSubmissionsCommand(opts))
	cmd.AddCommand(newRulesSubmitCommand(opts))
	return cmd
}

// RuleListing is one row of `rules list`.
type RuleListing struct {
	Index    int    `json:"index"`
	Format   string `json:"format"`
	Revision int    `json:"revision"`
	Hash     string `json:"hash"`
}

type ruleList []RuleListing

func (l ruleList) String() string {
	if len(l) == 0 {
		return "No rules stored"
	}
	var b strings.Builder
	for i, r := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "rule%d  rev %d  %s  %s", r.Index, r.Revision, r.Format, r.Hash)
	}
	return b.String()
}

// StoredRule is the output of `rules show`.
type StoredRule struct {
	RuleListing
	Body string `json:"body"`
}

func (r StoredRule) String() string { return r.Body }

// SubmissionListing is one journal entry of `rules submissions`.
type SubmissionListing struct {
	Seq       int64         `json:"seq"`
	RequestID string        `json:"request_id"`
	Format    string        `json:"format"`
	Hash      string        `json:"hash"`
	Accepted  bool          `json:"accepted"`
	Issues    []store.Issue `json:"issues"`
}

type submissionList []SubmissionListing

func (l submissionList) String() string {
	if len(l) == 0 {
		return "No submissions"
	}
	var b strings.Builder
	for i, s := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		verdict := "accepted"
		if !s.Accepted {
			verdict = "rejected"
		}
		fmt.Fprintf(&b, "#%d  %s  %s  %s", s.Seq, s.RequestID, s.Format, verdict)
		for _, is := range s.Issues {
			if is.ID != "" {
				fmt.Fprintf(&b, "\n    %s: %s", is.ID, is.Message)
			} else {
				fmt.Fprintf(&b, "\n    %s", is.Message)
			}
		}
	}
	return b.String()
}

func newRulesListCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored rules",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			return opts.withStore(cmd, formatter, func(ctx context.Context, st *store.Store) error {
				rules, err := st.ListRules(ctx)
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
				}
				out := ruleList{}
				for _, r := range rules {
					out = append(out, listing(r))
				}
				return formatter.Success(out)
			})
		},
	}
}

func newRulesShowCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <index>",
		Short:         "Print the stored document of a rule",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			index, err := parseIndex(args[0])
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
			}
			return opts.withStore(cmd, formatter, func(ctx context.Context, st *store.Store) error {
				r, err := st.ReadRule(ctx, index)
				if errors.Is(err, store.ErrNotFound) {
					return formatter.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no rule stored under index %d", index), nil)
				}
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
				}
				return formatter.Success(StoredRule{RuleListing: listing(r), Body: string(r.Body)})
			})
		},
	}
}

func newRulesSubmissionsCommand(opts *RulesOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "submissions <index>",
		Short:         "Print the submission journal of a rule",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			index, err := parseIndex(args[0])
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
			}
			return opts.withStore(cmd, formatter, func(ctx context.Context, st *store.Store) error {
				subs, err := st.ReadSubmissions(ctx, index, opts.Limit)
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
				}
				out := submissionList{}
				for _, s := range subs {
					out = append(out, SubmissionListing{
						Seq:       s.Seq,
						RequestID: s.RequestID,
						Format:    string(s.Format),
						Hash:      s.ContentHash,
						Accepted:  s.Accepted,
						Issues:    s.Issues,
					})
				}
				return formatter.Success(out)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the newest entries")
	return cmd
}

// SubmitResult reports the outcome of `rules submit`.
type SubmitResult struct {
	URL      string           `json:"url"`
	Index    int              `json:"index"`
	Accepted bool             `json:"accepted"`
	Hash     string           `json:"hash,omitempty"`
	Issues   []compiler.Issue `json:"issues"`
}

func (r SubmitResult) String() string {
	var b strings.Builder
	if r.Accepted {
		fmt.Fprintf(&b, "✓ Rule accepted by %s (%s)", r.URL, r.Hash)
	} else {
		fmt.Fprintf(&b, "✗ Rule not accepted by %s", r.URL)
	}
	for _, is := range r.Issues {
		fmt.Fprintf(&b, "\n  [%s] %s", is.Code, is.Message)
	}
	return b.String()
}

func newRulesSubmitCommand(opts *RulesOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <graph-file>",
		Short: "Submit a saved rule graph to a backend",
		Long: `Open a saved rule graph in an editor session, run one validation cycle
and submit the compiled document to {remote.base_url}/rule{index}.

Exit codes:
  0 - backend accepted the rule
  1 - graph invalid, rule rejected or backend unreachable
  2 - command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}
	cmd.Flags().IntVar(&opts.Index, "index", -1, "rule index (overrides remote.rule_index)")
	return cmd
}

func runSubmit(opts *RulesOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.config()

	if cfg.Remote.BaseURL == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "remote.base_url is not configured", nil)
	}
	index := cfg.Remote.RuleIndex
	if opts.Index >= 0 {
		index = opts.Index
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		return failLoad(formatter, err)
	}

	pal := catalog.Default()
	if cfg.Catalog != "" {
		if pal, err = catalog.Load(cfg.Catalog); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
	}

	logger := opts.logger()
	client := remote.NewClient(cfg.Remote.BaseURL,
		remote.WithFormat(remote.Format(cfg.Remote.Format)),
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithBreaker(remote.BreakerSettings{
			MaxRequests:         cfg.Remote.Breaker.MaxRequests,
			Interval:            cfg.Remote.Breaker.Interval,
			Timeout:             cfg.Remote.Breaker.Timeout,
			ConsecutiveFailures: cfg.Remote.Breaker.ConsecutiveFailures,
		}),
		remote.WithMetrics(remote.NewMetrics("rulegraph_cli")),
		remote.WithLogger(logger),
	)

	sub := &recordingSubmitter{client: client}
	session, err := engine.Open(snap,
		engine.WithCatalog(pal),
		engine.WithRule(cfg.Rule),
		engine.WithSubmitter(sub, index),
		engine.WithDebounce(cfg.Session.Debounce),
		engine.WithHistoryLimit(cfg.Session.HistoryLimit),
		engine.WithLabelProbeLimit(cfg.Session.LabelProbeLimit),
		engine.WithLogger(logger),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
	}
	defer session.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := session.Flush(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	status := session.Status()
	result := SubmitResult{
		URL:    client.URL(index),
		Index:  index,
		Issues: status.Issues,
	}
	if result.Issues == nil {
		result.Issues = []compiler.Issue{}
	}
	formatter.VerboseLog("Ran %d validation(s), %d submission(s)", session.Stats().Validations, session.Stats().Submissions)

	fail := func(code, message string) error {
		if opts.Format == "json" {
			return formatter.Fail(ExitFailure, code, message, result)
		}
		fmt.Fprintln(formatter.Writer, result)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
	}
	switch {
	case status.Alert != nil:
		return fail(ErrCodeTransport, status.Alert.Message)
	case sub.last == nil:
		return fail(ErrCodeInvalid, "rule graph is invalid")
	case !sub.last.Accepted:
		return fail(ErrCodeRejected, fmt.Sprintf("rule rejected by backend (HTTP %d)", sub.last.StatusCode))
	}

	result.Accepted = true
	if doc := session.Document(); doc != nil {
		if result.Hash, err = ir.DocumentHash(doc); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
	}
	return formatter.Success(result)
}

// recordingSubmitter keeps the last backend verdict. Flush orders the
// submission before the status is read.
type recordingSubmitter struct {
	client *remote.Client
	last   *remote.Result
}

func (r *recordingSubmitter) Submit(ctx context.Context, index int, doc *ir.Document) (*remote.Result, error) {
	res, err := r.client.Submit(ctx, index, doc)
	if err == nil {
		r.last = res
	}
	return res, err
}

// withStore opens the configured database for the duration of f.
func (o *RulesOptions) withStore(cmd *cobra.Command, formatter *OutputFormatter, f func(context.Context, *store.Store) error) error {
	path := o.Database
	if path == "" {
		path = o.config().Backend.Database
	}
	st, err := store.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			o.logger().Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return f(ctx, st)
}

func listing(r store.Rule) RuleListing {
	return RuleListing{
		Index:    r.Index,
		Format:   string(r.Format),
		Revision: r.Revision,
		Hash:     r.ContentHash,
	}
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "rule"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid rule index %q", s)
	}
	return n, nil
}
