package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/query"
)

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	Workers int
	Calls   int
	Kind    string
}

// StressResult is the output of the stress command.
type StressResult struct {
	Kind      string             `json:"kind"`
	Workers   int                `json:"workers"`
	Calls     int                `json:"calls"`
	Ceiling   int                `json:"ceiling"`
	Granted   int64              `json:"granted"`
	Denied    int64              `json:"denied"`
	Failed    int64              `json:"failed"`
	Usage     governor.Usage     `json:"usage"`
	Metrics   map[string]float64 `json:"metrics"`
	Overshoot bool               `json:"overshoot"`
}

func (r StressResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s calls from %d workers against a ceiling of %d\n", r.Calls, r.Kind, r.Workers, r.Ceiling)
	fmt.Fprintf(&b, "granted %d, denied %d, failed %d\n", r.Granted, r.Denied, r.Failed)
	if r.Overshoot {
		b.WriteString("OVERSHOOT: more reservations granted than the ceiling allows\n")
	}
	b.WriteString(usageLine(r.Usage))
	return b.String()
}

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Race concurrent call sites against one governor",
		Long: `Fan out calls from a worker pool that shares a single governor,
the way nested service calls share one transaction, and report how many
reservations were granted. Granted never exceeds the ceiling.

With --kind query every call is a real one-row fetch through the executor;
with --kind write every call reserves a write batch.

Example:
  bulkstore stress --driver memory --workers 16 --calls 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 8, "concurrent call sites")
	cmd.Flags().IntVar(&opts.Calls, "calls", 150, "total calls")
	cmd.Flags().StringVar(&opts.Kind, "kind", "query", "reservation kind (query|write)")

	return cmd
}

func runStress(opts *StressOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if opts.Workers <= 0 || opts.Calls < 0 {
		return out.Fail("invalid flags", NewExitError(ExitCommandError, "--workers must be positive and --calls non-negative"), nil)
	}
	if opts.Kind != "query" && opts.Kind != "write" {
		return out.Fail("invalid flags", NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q", opts.Kind)), nil)
	}

	reg := prometheus.NewRegistry()
	sess, err := openSession(opts.RootOptions, governor.WithMetrics(reg))
	if err != nil {
		return out.Fail("failed to open session", err, nil)
	}
	defer sess.Close()

	result, err := stress(cmd.Context(), sess, opts.Kind, opts.Workers, opts.Calls)
	if err != nil {
		return out.Fail("stress failed", err, nil)
	}
	if result.Metrics, err = gatherReservations(reg); err != nil {
		return out.Fail("gather metrics", err, nil)
	}
	return out.Success(result)
}

// stress runs calls reservations from a pool of workers sharing sess.gov.
func stress(ctx context.Context, sess *session, kind string, workers, calls int) (*StressResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	result := &StressResult{Kind: kind, Workers: workers, Calls: calls}
	limits := sess.gov.Limits()
	call := func() error { return sess.gov.ReserveWriteBatch() }
	result.Ceiling = limits.WriteCeiling
	if kind == "query" {
		result.Ceiling = limits.QueryCeiling
		sample := query.From("Account").Select("Name").Limit(1)
		call = func() error {
			_, err := sess.exec.FetchMany(ctx, sample)
			return err
		}
	}

	var granted, denied, failed atomic.Int64
	var wg sync.WaitGroup
	for range calls {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			switch err := call(); {
			case err == nil:
				granted.Add(1)
			case governor.IsQuotaExceeded(err):
				denied.Add(1)
			default:
				failed.Add(1)
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit: %w", err)
		}
	}
	wg.Wait()

	result.Granted = granted.Load()
	result.Denied = denied.Load()
	result.Failed = failed.Load()
	result.Usage = sess.gov.Usage()
	result.Overshoot = result.Granted+result.Failed > int64(result.Ceiling)
	return result, nil
}

// gatherReservations flattens the governor's reservation counter into
// "kind/outcome" keys.
func gatherReservations(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "bulkstore_governor_reservations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var kind, outcome string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "kind":
					kind = l.GetValue()
				case "outcome":
					outcome = l.GetValue()
				}
			}
			out[kind+"/"+outcome] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}
