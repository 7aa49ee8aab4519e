package rates

import (
	"sync"
)

type OutcomeKind int

const (
	// SkippedFresh: the cached snapshot was fresh, no request was made.
	SkippedFresh OutcomeKind = iota + 1
	// Updated: a new snapshot was fetched and stored.
	Updated
	// Failed: the fetch failed, the current rate is unchanged.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case SkippedFresh:
		return "skipped_fresh"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// RefreshOutcome classifies one explicit refresh. Err is set only for Failed.
type RefreshOutcome struct {
	Kind OutcomeKind
	Err  error

	// seq identifies one Publish, zero for outcomes never published.
	seq uint64
}

// Signal holds at most one pending RefreshOutcome until someone consumes it.
type Signal struct {
	mu      sync.Mutex
	seq     uint64
	pending *RefreshOutcome
	notify  chan struct{}
}

// Publish replaces whatever is pending and wakes one waiter on C. The
// returned copy of o can be passed to ConsumeIf.
func (s *Signal) Publish(o RefreshOutcome) RefreshOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	o.seq = s.seq
	s.pending = &o
	select {
	case s.notifyChan() <- struct{}{}:
	default:
	}
	return o
}

// ConsumeIf clears the pending outcome only if it is o.
func (s *Signal) ConsumeIf(o RefreshOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || o.seq == 0 || s.pending.seq != o.seq {
		return false
	}
	s.pending = nil
	return true
}

// C fires after Publish. It carries no value: use Consume or Peek.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyChan()
}

func (s *Signal) notifyChan() chan struct{} {
	if s.notify == nil {
		s.notify = make(chan struct{}, 1)
	}
	return s.notify
}

// Consume returns the pending outcome and clears it.
func (s *Signal) Consume() (RefreshOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return RefreshOutcome{}, false
	}
	o := *s.pending
	s.pending = nil
	return o, true
}

func (s *Signal) Peek() (RefreshOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return RefreshOutcome{}, false
	}
	return *s.pending, true
}
