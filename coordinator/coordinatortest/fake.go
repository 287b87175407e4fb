// Package coordinatortest provides an in-memory Coordinator for tests,
// playing the same role the teacher's siatest/dependencies package plays
// for Sia: a deterministic stand-in for a real dependency so the rest of
// the suite doesn't need a live Redis.
package coordinatortest

import (
	"context"
	"sync"
	"time"

	"gitlab.com/vycodi/vycodi/coordinator"
)

type entry struct {
	expiresAt time.Time
	hasTTL    bool
}

// Fake is a minimal, single-process reimplementation of the Coordinator
// primitives backed by plain Go maps. It is not meant to be fast or to
// model Redis exactly (no eviction thread runs; TTL expiry is checked
// lazily on access), only to exercise the call patterns this module
// makes against a real coordinator.
type Fake struct {
	mu       sync.Mutex
	counters map[string]int64
	hashes   map[string]map[string]string
	lists    map[string][]string
	sets     map[string]map[string]struct{}
	ttl      map[string]entry
}

// New returns an empty Fake coordinator.
func New() *Fake {
	return &Fake{
		counters: make(map[string]int64),
		hashes:   make(map[string]map[string]string),
		lists:    make(map[string][]string),
		sets:     make(map[string]map[string]struct{}),
		ttl:      make(map[string]entry),
	}
}

// expireLocked removes key's bookkeeping if its TTL has lapsed. Caller
// must hold f.mu.
func (f *Fake) expireLocked(key string) {
	e, ok := f.ttl[key]
	if !ok || !e.hasTTL {
		return
	}
	if time.Now().After(e.expiresAt) {
		delete(f.ttl, key)
		delete(f.hashes, key)
		delete(f.lists, key)
		delete(f.sets, key)
		delete(f.counters, key)
	}
}

func (f *Fake) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(key)
	f.counters[key]++
	return f.counters[key], nil
}

func (f *Fake) HSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(key)
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *Fake) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(key)
	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) LPush(_ context.Context, key string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{v}, f.lists[key]...)
	}
	return nil
}

func (f *Fake) RPush(_ context.Context, key string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func (f *Fake) RPop(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	if len(l) == 0 {
		return "", coordinator.ErrNotFound
	}
	v := l[len(l)-1]
	f.lists[key] = l[:len(l)-1]
	return v, nil
}

func (f *Fake) rpoplpushLocked(src, dst string) (string, bool) {
	l := f.lists[src]
	if len(l) == 0 {
		return "", false
	}
	v := l[len(l)-1]
	f.lists[src] = l[:len(l)-1]
	f.lists[dst] = append([]string{v}, f.lists[dst]...)
	return v, true
}

func (f *Fake) RPopLPush(_ context.Context, src, dst string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rpoplpushLocked(src, dst)
	if !ok {
		return "", coordinator.ErrNotFound
	}
	return v, nil
}

// BRPopLPush polls the fake at a fixed interval until the source list
// has an element or the timeout elapses. A timeout of 0 means "forever":
// it polls until an element arrives or ctx is done.
func (f *Fake) BRPopLPush(ctx context.Context, src, dst string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	unbounded := timeout == 0
	for {
		f.mu.Lock()
		v, ok := f.rpoplpushLocked(src, dst)
		f.mu.Unlock()
		if ok {
			return v, nil
		}
		if !unbounded && time.Now().After(deadline) {
			return "", coordinator.ErrNotFound
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (f *Fake) LRem(_ context.Context, key string, count int, value string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	var removed int64
	out := make([]string, 0, len(l))
	if count >= 0 {
		limit := count
		if limit == 0 {
			limit = len(l)
		}
		for _, v := range l {
			if v == value && int(removed) < limit {
				removed++
				continue
			}
			out = append(out, v)
		}
	} else {
		limit := -count
		for i := len(l) - 1; i >= 0; i-- {
			if l[i] == value && int(removed) < limit {
				removed++
				continue
			}
			out = append([]string{l[i]}, out...)
		}
	}
	f.lists[key] = out
	return removed, nil
}

func (f *Fake) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	n := int64(len(l))
	if n == 0 {
		return []string{}, nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

func (f *Fake) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]struct{})
		f.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (f *Fake) SRem(_ context.Context, key string, members ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sets[key]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, m := range members {
		if _, ok := s[m]; ok {
			delete(s, m)
			n++
		}
	}
	return n, nil
}

func (f *Fake) SCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sets[key])), nil
}

func (f *Fake) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *Fake) SRandMember(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for m := range f.sets[key] {
		return m, nil
	}
	return "", coordinator.ErrNotFound
}

func (f *Fake) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(key)
	if e, ok := f.ttl[key]; ok && e.hasTTL {
		return true, nil
	}
	if _, ok := f.hashes[key]; ok {
		return true, nil
	}
	if _, ok := f.lists[key]; ok {
		return true, nil
	}
	if _, ok := f.sets[key]; ok {
		return true, nil
	}
	return false, nil
}

func (f *Fake) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.hashes, key)
		delete(f.lists, key)
		delete(f.sets, key)
		delete(f.counters, key)
		delete(f.ttl, key)
	}
	return nil
}

func (f *Fake) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[key] = map[string]string{"": value}
	f.ttl[key] = entry{expiresAt: time.Now().Add(ttl), hasTTL: true}
	return nil
}

func (f *Fake) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(key)
	exists := false
	if _, ok := f.hashes[key]; ok {
		exists = true
	}
	if _, ok := f.lists[key]; ok {
		exists = true
	}
	if _, ok := f.sets[key]; ok {
		exists = true
	}
	if e, ok := f.ttl[key]; ok && e.hasTTL {
		exists = true
	}
	if !exists {
		return false, nil
	}
	f.ttl[key] = entry{expiresAt: time.Now().Add(ttl), hasTTL: true}
	return true, nil
}

var _ coordinator.Coordinator = (*Fake)(nil)
