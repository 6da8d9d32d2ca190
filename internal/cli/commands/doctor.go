package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/script"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a project health check",
		Long: `Analyze the project and report on its overall health.

The report covers:
- Project summary (scripts, calls, components, graph depth)
- Health checks grouped by category (Source, Graph, Metadata, Registry)
- Health score (0-100)
- Actionable recommendations

Unlike 'weft check', doctor always exits zero; it is a report, not a gate.`,
		Example: `  # Run health check
  weft doctor

  # Output as JSON
  weft doctor --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	Scripts       int `json:"scripts"`
	Calls         int `json:"calls"`
	StaticCalls   int `json:"static_calls"`
	DynamicCalls  int `json:"dynamic_calls"`
	Components    int `json:"components"`
	CyclicScripts int `json:"cyclic_scripts"`
	GraphDepth    int `json:"graph_depth"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command) error {
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

	out := cmd.OutOrStdout()
	scripts := sortedScripts(eng.Scripts())
	if len(scripts) == 0 && !result.HasErrors() {
		fmt.Fprintln(out, "No scripts found in project")
		return nil
	}

	// Link in memory for the graph-shaped checks; publish nothing.
	var res *linker.Result
	var linkErr error
	if len(scripts) > 0 {
		res, linkErr = linker.Link(cmd.Context(), scripts, cmdCtx.Logger)
	}

	snap, err := eng.Registry().Snapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read registry: %w", err)
	}

	report := buildDoctorOutput(doctorInput{
		scripts:    scripts,
		discErrors: result.Errors,
		linked:     res,
		linkErr:    linkErr,
		registry:   snap,
		storeHash:  storedLinkedHashes(eng),
	})

	if wantJSON(cmdCtx.Cfg) {
		return renderJSON(out, report)
	}
	renderDoctorText(out, report)
	return nil
}

// storedLinkedHashes reads name -> linked hash for the last published batch.
func storedLinkedHashes(eng *engine.Engine) map[string]string {
	out := make(map[string]string)
	recs, err := eng.StateStore().ListScripts()
	if err != nil {
		return out
	}
	for _, rec := range recs {
		if rec.LinkedHash != "" {
			out[rec.Name] = rec.LinkedHash
		}
	}
	return out
}

// doctorInput gathers everything the checks look at.
type doctorInput struct {
	scripts    []*script.Script
	discErrors []engine.DiscoveryError
	linked     *linker.Result
	linkErr    error
	registry   map[string]string
	storeHash  map[string]string
}

func buildDoctorOutput(in doctorInput) *DoctorOutput {
	summary := ProjectSummary{Scripts: len(in.scripts)}
	for _, s := range in.scripts {
		summary.Calls += len(s.CallSites)
	}
	if in.linked != nil {
		summary.StaticCalls = in.linked.Stats.StaticCalls
		summary.DynamicCalls = in.linked.Stats.DynamicCalls
		summary.Components = len(in.linked.Cond.Components)
		summary.CyclicScripts = in.linked.Stats.CyclicScripts
		summary.GraphDepth = len(in.linked.Cond.Levels)
	}

	checks := []HealthCheck{
		checkParse(in),
		checkTargets(in),
		checkCycles(in),
		checkOrphans(in),
		checkDescriptions(in),
		checkOwners(in),
		checkPublished(in),
	}

	sort.Slice(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return checks[i].Group < checks[j].Group
		}
		return checks[i].RuleID < checks[j].RuleID
	})

	issueCount := 0
	for _, c := range checks {
		issueCount += c.IssueCount
	}

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    checks,
		Score:           calculateHealthScore(checks, len(in.scripts)),
		Recommendations: generateRecommendations(checks),
		IssueCount:      issueCount,
	}
}

func checkParse(in doctorInput) HealthCheck {
	c := HealthCheck{RuleID: "parse", Name: "Scripts parse cleanly", Group: "source"}
	for i := range in.discErrors {
		de := &in.discErrors[i]
		c.Details = append(c.Details, fmt.Sprintf("%s: %s", de.Path, de.Message))
	}
	c.IssueCount = len(c.Details)
	c.Status = statusFor(c.IssueCount, true)
	return c
}

func checkTargets(in doctorInput) HealthCheck {
	c := HealthCheck{RuleID: "targets", Name: "Call targets resolve", Group: "graph"}
	if in.linkErr != nil {
		for _, is := range linkIssues(in.linkErr) {
			loc := is.Location
			if is.Line > 0 {
				loc = fmt.Sprintf("%s:%d:%d", is.Location, is.Line, is.Column)
			}
			c.Details = append(c.Details, fmt.Sprintf("%s: %s", loc, is.Message))
		}
	}
	c.IssueCount = len(c.Details)
	c.Status = statusFor(c.IssueCount, true)
	return c
}

func checkCycles(in doctorInput) HealthCheck {
	c := HealthCheck{RuleID: "cycles", Name: "Call graph is acyclic", Group: "graph"}
	if in.linked != nil {
		for _, comp := range in.linked.Cond.Components {
			if comp.Cyclic {
				c.Details = append(c.Details, strings.Join(comp.Members, " <-> "))
			}
		}
	}
	c.IssueCount = len(c.Details)
	c.Status = statusFor(c.IssueCount, false)
	return c
}

func checkOrphans(in doctorInput) HealthCheck {
	c := HealthCheck{RuleID: "orphans", Name: "Scripts participate in the graph", Group: "graph"}
	if in.linked != nil && len(in.scripts) > 1 {
		for _, s := range in.scripts {
			if len(s.CallSites) == 0 && len(in.linked.Graph.Callers(s.Name)) == 0 {
				c.Details = append(c.Details, fmt.Sprintf("%s neither calls nor is called", s.Name))
			}
		}
	}
	c.IssueCount = len(c.Details)
	c.Status = statusFor(c.IssueCount, false)
	return c
}

func checkDescriptions(in doctorInput) HealthCheck {
	c := HealthCheck{RuleID: "description", Name: "Scripts carry a description", Group: "metadata"}
	for _, s := range in.scripts {
		if s.Meta.Description == "" {
			c.Details = append(c.Details, s.Name)
		}
	}
	c.IssueCount = len(c.Details)
	c.Status = statusFor(c.IssueCount, false)
	return c
}

func checkOwners(in doctorInput) HealthCheck {
	c := HealthCheck{RuleID: "owner", Name: "Scripts carry an owner", Group: "metadata"}
	for _, s := range in.scripts {
		if s.Meta.Owner == "" {
			c.Details = append(c.Details, s.Name)
		}
	}
	c.IssueCount = len(c.Details)
	c.Status = statusFor(c.IssueCount, false)
	return c
}

func checkPublished(in doctorInput) HealthCheck {
	c := HealthCheck{RuleID: "publish", Name: "Registry matches the linked batch", Group: "registry"}
	if len(in.storeHash) == 0 {
		c.Details = append(c.Details, "no linked batch; run 'weft build'")
	} else {
		names := make([]string, 0, len(in.storeHash))
		for name := range in.storeHash {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			published, ok := in.registry[name]
			switch {
			case !ok:
				c.Details = append(c.Details, fmt.Sprintf("%s was linked but never published", name))
			case published != in.storeHash[name]:
				c.Details = append(c.Details, fmt.Sprintf("%s is stale in the registry", name))
			}
		}
	}
	c.IssueCount = len(c.Details)
	c.Status = statusFor(c.IssueCount, false)
	return c
}

func statusFor(issues int, isError bool) string {
	if issues == 0 {
		return "pass"
	}
	if isError {
		return "error"
	}
	return "warn"
}

// calculateHealthScore computes a health score from 0-100. Larger projects
// absorb individual issues better, so the per-issue penalty shrinks with
// script count. Errors count double.
func calculateHealthScore(checks []HealthCheck, scriptCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0

	basePenalty := 5.0
	if scriptCount > 10 {
		basePenalty = 3.0
	}
	if scriptCount > 50 {
		basePenalty = 2.0
	}
	if scriptCount > 100 {
		basePenalty = 1.0
	}

	for _, check := range checks {
		switch check.Status {
		case "error":
			score -= float64(check.IssueCount) * basePenalty * 2
		case "warn":
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return int(score)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		rec := getRecommendation(check.RuleID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}

	return recommendations
}

// getRecommendation returns a recommendation for a specific rule.
func getRecommendation(ruleID string) string {
	switch ruleID {
	case "parse":
		return "Fix parse failures; any one of them rejects the next build"
	case "targets":
		return "Add the missing scripts or correct the call targets"
	case "cycles":
		return "Break unintended cycles; cyclic calls resolve through the registry at run time"
	case "orphans":
		return "Remove unused scripts or wire them into the call graph"
	case "description":
		return "Add description frontmatter so list and serve output stays readable"
	case "owner":
		return "Add owner frontmatter so failures can be routed"
	case "publish":
		return "Run 'weft build' to publish the current batch"
	default:
		return ""
	}
}

func renderDoctorText(w io.Writer, out *DoctorOutput) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Weft Project Health Report")
	fmt.Fprintln(w, strings.Repeat("=", 55))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Project Summary")
	fmt.Fprintf(w, "   Scripts: %d | Calls: %d (%d static, %d dynamic)\n",
		out.Summary.Scripts, out.Summary.Calls, out.Summary.StaticCalls, out.Summary.DynamicCalls)
	fmt.Fprintf(w, "   Components: %d | Cyclic scripts: %d | Graph depth: %d levels\n",
		out.Summary.Components, out.Summary.CyclicScripts, out.Summary.GraphDepth)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Health Checks")
	fmt.Fprintln(w)

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			fmt.Fprintln(w, "   "+titleCaser.String(currentGroup))
			fmt.Fprintln(w, "   "+strings.Repeat("-", 40))
		}

		icon := "ok "
		switch check.Status {
		case "warn":
			icon = "!  "
		case "error":
			icon = "ERR"
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		fmt.Fprintln(w, "   "+status)

		for i, detail := range check.Details {
			if i >= 3 {
				fmt.Fprintf(w, "       ... and %d more\n", len(check.Details)-3)
				break
			}
			fmt.Fprintln(w, "       - "+detail)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Repeat("=", 55))
	fmt.Fprintf(w, "   Health Score: %d/100\n", out.Score)
	fmt.Fprintln(w)

	if len(out.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations")
		for i, rec := range out.Recommendations {
			fmt.Fprintf(w, "   %d. %s\n", i+1, rec)
		}
		fmt.Fprintln(w)
	}
}
