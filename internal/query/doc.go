// Package query provides the structured query representation used to read
// records from a record store.
//
// A Query names a target collection, an ordered projection, an optional
// filter tree, relationship sub-queries (child rows fetched in the same
// round trip), grouping and aggregates, ordering and paging.
//
// IMMUTABILITY:
//
// Queries are values. Every builder method returns a new *Query and leaves
// the receiver untouched, so a base query can be shared and refined:
//
//	base := query.From("Account").Select("Name", "Industry")
//	active := base.Where(query.Eq("Active", ir.Bool(true)))
//	top := active.OrderByDesc("AnnualRevenue").Limit(10)
//
// ERRORS:
//
// A builder step that is invalid on its own (unknown operator, empty IN
// set, relation nested too deep) records a *MalformedQueryError on the
// returned query. The first such error is sticky: later steps keep it and
// Err reports it. Validate adds the checks that need the whole query, and
// Build runs Validate before handing the query back.
//
// Building a query reserves no quota and performs no I/O.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern, so store
// backends can switch over the filter tree exhaustively.
package query
