package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	session Session
	expires time.Time
}

// MemoryTable keeps sessions in-process. Expiry is checked on every read and
// by Sweep.
type MemoryTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]entry
}

// NewMemoryTable builds a table whose entries live for ttl after their last
// Put. A non-positive ttl falls back to DefaultTTL.
func NewMemoryTable(ttl time.Duration) *MemoryTable {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTable{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]entry),
	}
}

var _ Table = (*MemoryTable)(nil)

func (t *MemoryTable) Get(_ context.Context, adminID int64) (Session, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[adminID]
	if !ok {
		return Session{}, false, nil
	}
	if !t.now().Before(e.expires) {
		delete(t.entries, adminID)
		return Session{}, false, nil
	}
	return e.session, true, nil
}

func (t *MemoryTable) Put(_ context.Context, s Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s.AdminID] = entry{session: s, expires: t.now().Add(t.ttl)}
	return nil
}

func (t *MemoryTable) Delete(_ context.Context, adminID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, adminID)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (t *MemoryTable) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	removed := 0
	for id, e := range t.entries {
		if !now.Before(e.expires) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (t *MemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// RunSweeper calls Sweep every interval until ctx is done. A non-positive
// interval falls back to DefaultSweepInterval.
func (t *MemoryTable) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := t.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}
