package bot

import (
	"sort"
	"sync"

	"github.com/caixaflow/caixabot/internal/platform"
)

// Sequencer tracks the platform-assigned monotonic update offset for a
// polling session. It keeps two watermarks: emitted (the highest identifier
// handed downstream) and acked (the highest identifier whose handling
// completed). Fetches resume from the acked watermark, so a downstream
// failure on update N means N is refetched on a later poll; consumers must
// treat handling as idempotent.
//
// State is process-local and not persisted; a cold start resumes from the
// platform-reported minimum.
type Sequencer struct {
	mu      sync.Mutex
	emitted int64
	acked   int64
}

// NewSequencer creates a sequencer with no acknowledged offset.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// FetchOffset returns the offset to pass to the next fetch call: one past the
// last acknowledged identifier, or zero when nothing has been acknowledged
// yet (the platform then reports from its own minimum).
func (s *Sequencer) FetchOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acked == 0 {
		return 0
	}
	return s.acked + 1
}

// Filter drops updates already emitted downstream, returns the remainder in
// ascending identifier order, and advances the emitted watermark to the
// highest identifier seen.
func (s *Sequencer) Filter(batch []platform.Update) []platform.Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]platform.Update, 0, len(batch))
	for _, u := range batch {
		if u.ID <= s.emitted {
			continue
		}
		fresh = append(fresh, u)
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	if n := len(fresh); n > 0 {
		s.emitted = fresh[n-1].ID
	}
	return fresh
}

// Ack records that handling of the given update completed. Offsets only move
// forward; acknowledging an older identifier is a no-op.
func (s *Sequencer) Ack(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id > s.acked {
		s.acked = id
	}
}

// Rewind resets the emitted watermark to the acked one so that everything
// handed out but not acknowledged is re-emitted after a refetch. Called on
// handler failure and on poll-loop restart.
func (s *Sequencer) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emitted = s.acked
}

// Pending reports whether id is currently emitted but not yet acknowledged.
// A rewind revokes everything above the acked watermark, so updates handed
// out before it stop being pending; consumers must skip them and let the
// refetch re-emit the whole unacknowledged tail in order.
func (s *Sequencer) Pending(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return id > s.acked && id <= s.emitted
}

// LastOffset returns the last acknowledged offset.
func (s *Sequencer) LastOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.acked
}
