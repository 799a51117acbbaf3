package lock

import (
	"context"
	"sync"
	"time"
)

// Dedup remembers claimed request ids until their TTL passes. Expired
// entries are swept lazily on Claim.
type Dedup struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewDedup creates an empty Dedup
func NewDedup() *Dedup {
	return &Dedup{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Claim records key in scope. It returns false while an earlier claim of
// the same key is still live.
func (d *Dedup) Claim(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, k)
		}
	}

	k := scope + ":" + key
	if _, ok := d.entries[k]; ok {
		return false, nil
	}
	d.entries[k] = now.Add(ttl)
	return true, nil
}

// Forget drops a claim
func (d *Dedup) Forget(_ context.Context, scope, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, scope+":"+key)
	return nil
}
