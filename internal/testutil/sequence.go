package testutil

import (
	"fmt"
	"sync"
)

// Sequence mints deterministic identities for tests: ids, client refs and
// governor scopes. Generated values are format applied to 1, 2, 3 and so on.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	format string
	n      int
}

// NewSequence creates a sequence over format, which takes one integer verb
// ("gen-%d", "acc-%03d").
func NewSequence(format string) *Sequence {
	return &Sequence{format: format}
}

// Next returns the next identity. Pass the method value as a generator:
//
//	memstore.WithIDGenerator(testutil.NewSequence("gen-%d").Next)
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf(s.format, s.n)
}

// Count returns how many identities have been minted.
func (s *Sequence) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset restarts the sequence. After Reset, Next returns format applied to 1.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}

// Fixed returns a generator that always yields token. An empty token
// yields "test-default".
func Fixed(token string) func() string {
	if token == "" {
		token = "test-default"
	}
	return func() string { return token }
}
