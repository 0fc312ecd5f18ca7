// Package testutil provides deterministic generators for tests.
package testutil
