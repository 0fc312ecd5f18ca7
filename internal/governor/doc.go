// Package governor enforces hard, transaction-scoped ceilings on the number
// of read queries and write batches issued against a record store.
//
// The ceilings exist to force batching: an operation that issues one query
// per record fails as soon as the transaction touches more records than the
// ceiling allows, while the batched form of the same work stays within it.
//
// A Governor is created once per unit of work, shared by pointer, and Reset
// at the start of each transaction.
package governor
