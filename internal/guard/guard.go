// Package guard gates entry into the admin sub-session behind a shared secret
// with a per-address lockout.
package guard

import (
	"crypto/subtle"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxFailures = 3
	defaultWindow      = 5 * time.Minute
	shardCount         = 16

	// maxTrackedPerShard caps the failure records a shard holds so that a
	// flood of rotating addresses cannot grow the map without bound.
	maxTrackedPerShard = 1024

	// lengthThreshold is the candidate length above which any text is
	// treated as a secret attempt.
	lengthThreshold = 16
)

const delimiters = "#$%&*!|:;_-+="

var roleKeywords = []string{"admin", "root", "superuser", "staff"}

// Result is the outcome of a single Check.
type Result struct {
	// Attempted is true when the candidate looked like a secret entry.
	Attempted     bool
	IsSecretMatch bool
	IsLockedOut   bool
}

type failureRecord struct {
	count       int
	lastAttempt time.Time
}

type shard struct {
	mu      sync.Mutex
	records map[string]*failureRecord
}

// Guard compares candidate text against the admin secret in constant time and
// locks an address out after repeated failures. Safe for concurrent use.
type Guard struct {
	secret      []byte
	maxFailures int
	window      time.Duration
	now         func() time.Time
	shards      [shardCount]shard
}

type Option func(*Guard)

func WithMaxFailures(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxFailures = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a Guard for the given secret.
func New(secret string, opts ...Option) (*Guard, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("guard: secret must not be empty")
	}
	g := &Guard{
		secret:      []byte(secret),
		maxFailures: defaultMaxFailures,
		window:      defaultWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	for i := range g.shards {
		g.shards[i].records = make(map[string]*failureRecord)
	}
	return g, nil
}

// Check evaluates candidate as a possible secret entry from address.
func (g *Guard) Check(address, candidate string) Result {
	candidate = strings.TrimSpace(candidate)
	if !LooksLikeSecret(candidate) {
		return Result{}
	}

	s := g.shardFor(address)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := g.now()
	rec := s.records[address]
	if rec != nil && now.Sub(rec.lastAttempt) > g.window {
		delete(s.records, address)
		rec = nil
	}
	if rec != nil && rec.count >= g.maxFailures {
		return Result{Attempted: true, IsLockedOut: true}
	}

	if equalConstantTime([]byte(candidate), g.secret) {
		delete(s.records, address)
		return Result{Attempted: true, IsSecretMatch: true}
	}

	if rec == nil {
		s.pruneLocked(now, g.window, g.maxFailures)
		rec = &failureRecord{}
		s.records[address] = rec
	}
	rec.count++
	rec.lastAttempt = now
	return Result{Attempted: true}
}

// Failures returns the current failure count for address inside the window.
func (g *Guard) Failures(address string) int {
	s := g.shardFor(address)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[address]
	if rec == nil || g.now().Sub(rec.lastAttempt) > g.window {
		return 0
	}
	return rec.count
}

func (g *Guard) shardFor(address string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(address))
	return &g.shards[h.Sum32()%shardCount]
}

// pruneLocked drops stale records once the shard is at capacity, then evicts
// the oldest records that are still below the lockout threshold. Locked-out
// records are never evicted, so flooding a shard cannot lift a lockout.
func (s *shard) pruneLocked(now time.Time, window time.Duration, maxFailures int) {
	if len(s.records) < maxTrackedPerShard {
		return
	}
	for k, r := range s.records {
		if now.Sub(r.lastAttempt) > window {
			delete(s.records, k)
		}
	}
	for len(s.records) >= maxTrackedPerShard {
		victim := ""
		var oldest time.Time
		for k, r := range s.records {
			if r.count >= maxFailures {
				continue
			}
			if victim == "" || r.lastAttempt.Before(oldest) {
				victim, oldest = k, r.lastAttempt
			}
		}
		if victim == "" {
			return
		}
		delete(s.records, victim)
	}
}

// LooksLikeSecret is the cheap pre-filter that keeps ordinary replies from
// consuming lockout budget.
func LooksLikeSecret(candidate string) bool {
	if candidate == "" {
		return false
	}
	if len(candidate) > lengthThreshold {
		return true
	}
	if strings.ContainsAny(candidate, delimiters) {
		return true
	}
	lower := strings.ToLower(candidate)
	for _, kw := range roleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// equalConstantTime compares a and b in time that depends only on the longer
// length. Both are padded to a common length before the byte comparison and
// the length check itself is constant time.
func equalConstantTime(a, b []byte) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	pa := make([]byte, n)
	pb := make([]byte, n)
	copy(pa, a)
	copy(pb, b)

	sameBytes := subtle.ConstantTimeCompare(pa, pb)
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	return sameBytes&sameLen == 1
}
