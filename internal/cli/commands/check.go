package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/script"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Severity string // Minimum severity to report: error, warning
	Strict   bool   // Fail on warnings too
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate scripts without publishing",
		Long: `Validate every script in the project: parse failures, malformed call
sites, duplicate names, and calls to targets missing from the batch.

The command links in memory only; the state store and the registry are
untouched. Any error here is exactly what would reject the batch on the
next build.`,
		Example: `  # Check all scripts
  weft check

  # Machine-readable report
  weft check --output json

  # Treat warnings as failures
  weft check --strict`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Severity, "severity", "warning", "Minimum severity to report: error, warning")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Exit nonzero on warnings as well as errors")

	return cmd
}

// checkIssue is one finding, in file/line order.
type checkIssue struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Location string `json:"location"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
}

// checkOutput is the JSON shape of a check run.
type checkOutput struct {
	Errors   int          `json:"errors"`
	Warnings int          `json:"warnings"`
	Issues   []checkIssue `json:"issues"`
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	result, err := eng.Discover(engine.DiscoveryOptions{})
	if err != nil {
		return fmt.Errorf("failed to discover scripts: %w", err)
	}

	var issues []checkIssue

	// Per-file discovery failures: any one of these rejects a build batch.
	for i := range result.Errors {
		de := &result.Errors[i]
		issues = append(issues, checkIssue{
			Severity: "error",
			Code:     de.Type,
			Location: de.Path,
			Message:  de.Message,
		})
	}

	// Dangling targets surface from an in-memory link of whatever parsed.
	scripts := sortedScripts(eng.Scripts())
	if len(scripts) > 0 {
		if _, lerr := linker.Link(cmd.Context(), scripts, cmdCtx.Logger); lerr != nil {
			issues = append(issues, linkIssues(lerr)...)
		}
	}

	issues = append(issues, metaIssues(scripts)...)

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Location != issues[j].Location {
			return issues[i].Location < issues[j].Location
		}
		return issues[i].Line < issues[j].Line
	})

	if strings.EqualFold(opts.Severity, "error") {
		filtered := issues[:0]
		for _, is := range issues {
			if is.Severity == "error" {
				filtered = append(filtered, is)
			}
		}
		issues = filtered
	}

	errCount, warnCount := 0, 0
	for _, is := range issues {
		if is.Severity == "error" {
			errCount++
		} else {
			warnCount++
		}
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmdCtx.Cfg) {
		if err := renderJSON(out, checkOutput{Errors: errCount, Warnings: warnCount, Issues: issues}); err != nil {
			return err
		}
	} else if len(issues) == 0 {
		fmt.Fprintf(out, "No issues found (%d scripts)\n", len(scripts))
	} else {
		t := newTable(out)
		t.AppendHeader(table.Row{"Severity", "Location", "Code", "Message"})
		for _, is := range issues {
			loc := is.Location
			if is.Line > 0 {
				loc = fmt.Sprintf("%s:%d:%d", is.Location, is.Line, is.Column)
			}
			t.AppendRow(table.Row{is.Severity, loc, is.Code, is.Message})
		}
		t.Render()
		fmt.Fprintf(out, "%d error(s), %d warning(s) in %d scripts\n", errCount, warnCount, len(scripts))
	}

	if errCount > 0 || (opts.Strict && warnCount > 0) {
		return fmt.Errorf("check failed: %d error(s), %d warning(s)", errCount, warnCount)
	}
	return nil
}

// linkIssues flattens an in-memory link failure into per-site findings.
// linker.Link joins every unknown-target error before rewriting anything,
// so one pass reports them all.
func linkIssues(err error) []checkIssue {
	var issues []checkIssue
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, sub := range joined.Unwrap() {
				walk(sub)
			}
			return
		}
		var ue *script.UnknownTargetError
		if errors.As(e, &ue) {
			issues = append(issues, checkIssue{
				Severity: "error",
				Code:     "target",
				Location: ue.Script,
				Line:     ue.Line,
				Column:   ue.Column,
				Message:  fmt.Sprintf("unknown call target %q", ue.Target),
			})
			return
		}
		issues = append(issues, checkIssue{
			Severity: "error",
			Code:     "link",
			Location: "-",
			Message:  e.Error(),
		})
	}
	walk(err)
	return issues
}

// metaIssues reports advisory frontmatter gaps.
func metaIssues(scripts []*script.Script) []checkIssue {
	var issues []checkIssue
	for _, s := range scripts {
		if s.Meta.Description == "" {
			issues = append(issues, checkIssue{
				Severity: "warning",
				Code:     "description",
				Location: s.FilePath,
				Message:  fmt.Sprintf("script %q has no description frontmatter", s.Name),
			})
		}
	}
	return issues
}
