// Package schema describes the record collections a store holds: typed
// fields in declaration order and the parent-to-children relationships
// that relationship sub-queries traverse.
//
// Catalogs are written in CUE. The default catalog is embedded; Load reads
// an alternative from a directory.
package schema
