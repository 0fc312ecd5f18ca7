// Package domain holds the business entities: accounts, their contacts and
// their sales opportunities.
//
// Entities enforce their invariants in constructors and mutators and know
// nothing about how they are stored. A zero-value entity is valid only to
// be filled in field by field; call Validate before relying on it.
package domain
