// Package memstore is an in-memory implementation of the record store
// boundary. It is the reference collaborator for tests: it counts round
// trips, records every bulk write, and can be told to fail.
package memstore
