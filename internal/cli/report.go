package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// StageTotal is one row of the pipeline report.
type StageTotal struct {
	Stage   string `json:"stage"`
	Deals   int64  `json:"deals"`
	Total   string `json:"total"`
	Average string `json:"average"`
}

// ReportResult is the output of the report command.
type ReportResult struct {
	Stages []StageTotal   `json:"stages"`
	Usage  governor.Usage `json:"usage"`
}

func (r ReportResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %6s %14s %14s\n", "STAGE", "DEALS", "TOTAL", "AVERAGE")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "%-16s %6d %14s %14s\n", s.Stage, s.Deals, s.Total, s.Average)
	}
	b.WriteString(usageLine(r.Usage))
	return b.String()
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise opportunity amounts by stage",
		Long: `Aggregate opportunity count, total and average amount per stage
with one aggregate query.

Example:
  bulkstore report --db ./bulkstore.db
  bulkstore report --open`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, open, cmd)
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "only stages that are not closed")

	return cmd
}

// pipelineQuery groups opportunities by stage.
func pipelineQuery(openOnly bool) *query.Query {
	q := query.From("Opportunity").
		Select("Stage").
		GroupBy("Stage").
		AggregateAs(query.Count, "", "deals").
		AggregateAs(query.Sum, "Amount", "total").
		AggregateAs(query.Avg, "Amount", "average").
		OrderBy("Stage")
	if openOnly {
		q = q.Where(query.Negate(query.InSet("Stage", ir.String("Closed Won"), ir.String("Closed Lost"))))
	}
	return q
}

func runReport(opts *RootOptions, openOnly bool, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	sess, err := openSession(opts)
	if err != nil {
		return out.Fail("failed to open session", err, nil)
	}
	defer sess.Close()

	rows, err := sess.exec.FetchAggregates(cmd.Context(), pipelineQuery(openOnly))
	if err != nil {
		return out.Fail("report failed", err, sess.gov.Usage())
	}

	result := ReportResult{Stages: make([]StageTotal, 0, len(rows)), Usage: sess.gov.Usage()}
	for _, row := range rows {
		st := StageTotal{
			Stage:   ir.Format(row.Group[0]),
			Total:   ir.Format(row.Value("total")),
			Average: ir.Format(row.Value("average")),
		}
		if n, ok := row.Value("deals").(ir.Int); ok {
			st.Deals = int64(n)
		}
		result.Stages = append(result.Stages, st)
	}
	return out.Success(result)
}
