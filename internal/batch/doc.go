// Package batch defers record writes to the end of a unit of work and
// issues them as bulk calls, one per collection and write kind.
//
// Saving N records of one kind costs one write-batch reservation, not N.
// A record may be pending under one kind only; enqueueing it again under
// the same kind replaces the pending version.
package batch
