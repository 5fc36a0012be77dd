package nodeid

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces candidate ids. The registry retries on collision.
type Generator interface {
	New() string
}

// UUIDGenerator returns random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }

// Sequence returns predefined ids first, then "<prefix>-<n>". Useful in tests
// when ids matter to the assertion.
type Sequence struct {
	mu     sync.Mutex
	Prefix string
	next   []string
	n      int
}

func NewSequence(prefix string, next ...string) *Sequence {
	return &Sequence{Prefix: prefix, next: next}
}

func (s *Sequence) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.next) > 0 {
		id := s.next[0]
		s.next = s.next[1:]
		return id
	}
	s.n++
	return fmt.Sprintf("%s-%d", s.Prefix, s.n)
}
