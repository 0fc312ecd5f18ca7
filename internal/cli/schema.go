package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstore/internal/config"
	"github.com/roach88/bulkstore/internal/querysql"
	"github.com/roach88/bulkstore/internal/store/sqlstore"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Dialect string
}

// CollectionInfo describes one catalog collection.
type CollectionInfo struct {
	Name      string            `json:"name"`
	Fields    map[string]string `json:"fields"`
	Order     []string          `json:"field_order"`
	Relations []RelationInfo    `json:"relations,omitempty"`
}

// RelationInfo describes one relationship.
type RelationInfo struct {
	Name       string `json:"name"`
	Child      string `json:"child"`
	ForeignKey string `json:"foreign_key"`
}

// SchemaResult is the output of the schema command.
type SchemaResult struct {
	Collections []CollectionInfo `json:"collections"`
	Dialect     string           `json:"dialect"`
	DDL         []string         `json:"ddl"`
}

func (r SchemaResult) String() string {
	var b strings.Builder
	for _, col := range r.Collections {
		fmt.Fprintf(&b, "%s\n", col.Name)
		for _, f := range col.Order {
			fmt.Fprintf(&b, "  %-18s %s\n", f, col.Fields[f])
		}
		for _, rel := range col.Relations {
			fmt.Fprintf(&b, "  %-18s -> %s.%s\n", rel.Name, rel.Child, rel.ForeignKey)
		}
	}
	fmt.Fprintf(&b, "\n-- %s\n", r.Dialect)
	for _, stmt := range r.DDL {
		fmt.Fprintf(&b, "%s;\n", stmt)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the catalog and its DDL",
		Long: `Print every collection of the catalog with its fields and
relationships, followed by the CREATE statements the SQL store runs.

Example:
  bulkstore schema
  bulkstore schema --dialect postgres --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (sqlite|postgres), defaults to the configured driver")

	return cmd
}

func runSchema(opts *SchemaOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	catalog, err := loadCatalog(opts.CatalogDir)
	if err != nil {
		return out.Fail("failed to load catalog", WrapExitError(ExitCommandError, "catalog", err), nil)
	}

	name := opts.Dialect
	if name == "" {
		name = opts.Config.Store.Driver
	}
	if name == config.DriverMemory {
		name = "sqlite"
	}
	dialect, err := querysql.ParseDialect(name)
	if err != nil {
		return out.Fail("invalid dialect", WrapExitError(ExitCommandError, "dialect", err), nil)
	}

	result := SchemaResult{
		Dialect: dialect.String(),
		DDL:     sqlstore.DDL(querysql.NewCompiler(dialect), catalog),
	}
	for _, col := range catalog.Collections() {
		info := CollectionInfo{Name: col.Name, Fields: make(map[string]string, len(col.Fields))}
		for _, f := range col.Fields {
			info.Fields[f.Name] = string(f.Kind)
			info.Order = append(info.Order, f.Name)
		}
		for _, rel := range col.Relations {
			info.Relations = append(info.Relations, RelationInfo{Name: rel.Name, Child: rel.Child, ForeignKey: rel.ForeignKey})
		}
		result.Collections = append(result.Collections, info)
	}
	return out.Success(result)
}
