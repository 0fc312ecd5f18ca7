package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Relations []string
}

// GetResult is the output of the get command.
type GetResult struct {
	Records json.RawMessage `json:"records"`
	Count   int             `json:"count"`
	Usage   governor.Usage  `json:"usage"`

	lines []string
}

func (r GetResult) String() string {
	lines := append([]string{}, r.lines...)
	lines = append(lines, fmt.Sprintf("%d records", r.Count), usageLine(r.Usage))
	return strings.Join(lines, "\n")
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <collection> <id>...",
		Short: "Fetch records by id with one query",
		Long: `Fetch every listed record of a collection with a single query,
whatever the number of ids. Relationships named with --with are resolved
in the same round trip.

Example:
  bulkstore get Account 0190... 0191...
  bulkstore get Account 0190... --with Contacts --format json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Relations, "with", nil, "relationships to include")

	return cmd
}

func runGet(opts *GetOptions, collection string, ids []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	sess, err := openSession(opts.RootOptions)
	if err != nil {
		return out.Fail("failed to open session", err, nil)
	}
	defer sess.Close()

	q, err := sess.byIDs(collection, ids, opts.Relations)
	if err != nil {
		return out.Fail("invalid query", err, nil)
	}
	out.VerboseLog("query: %s", q)

	recs, err := sess.exec.FetchMany(cmd.Context(), q)
	if err != nil {
		return out.Fail("get failed", err, sess.gov.Usage())
	}

	raw, err := ir.MarshalCanonicalRecords(recs)
	if err != nil {
		return out.Fail("encode records", err, nil)
	}
	result := GetResult{Records: raw, Count: len(recs), Usage: sess.gov.Usage()}
	for _, rec := range recs {
		line, err := ir.MarshalCanonical(rec)
		if err != nil {
			return out.Fail("encode record", err, nil)
		}
		result.lines = append(result.lines, string(line))
	}
	return out.Success(result)
}

// byIDs selects every field of collection for ids, with the named
// relationships projecting every field of their child collection.
func (s *session) byIDs(collection string, ids, relations []string) (*query.Query, error) {
	col, ok := s.catalog.Collection(collection)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown collection %s", collection))
	}
	limits := query.WithLimits(s.cfg.QueryLimits())
	q := query.From(col.Name, limits).
		Select(append([]string{query.IDField}, col.FieldNames()...)...).
		Where(query.InIDs(ids...))
	for _, name := range relations {
		rel, ok := col.Relation(name)
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown relation %s.%s", col.Name, name))
		}
		child, _ := s.catalog.Collection(rel.Child)
		q = q.WithRelation(name, query.From(child.Name, limits).Select(child.FieldNames()...))
	}
	return q.Build()
}
