// Package ir defines the record shapes exchanged with the external record
// store.
//
// Records are loosely typed field maps. Every field value is one of a closed
// set of variants (see Value), so mapping code narrows values explicitly and
// surfaces FieldTypeMismatchError instead of guessing.
//
// ir imports nothing internal. Every other internal package may import it.
//
// Key constraints:
//   - NO floats: numbers are Int or Decimal
//   - Date and DateTime are always UTC
//   - Record.ID is empty until the store assigns one
package ir
