package guard

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "open#sesame-2026"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGuard(t *testing.T) (*Guard, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g, err := New(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return g, clock
}

func TestNew_EmptySecret(t *testing.T) {
	_, err := New("   ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestCheck_Match(t *testing.T) {
	g, _ := newTestGuard(t)
	res := g.Check("15551230001", "  "+testSecret+" ")
	require.Equal(t, Result{Attempted: true, IsSecretMatch: true}, res)
}

func TestCheck_OrdinaryTextIsNotAnAttempt(t *testing.T) {
	g, _ := newTestGuard(t)
	for _, text := range []string{"hello", "MENU", "yes", "50", ""} {
		res := g.Check("15551230001", text)
		require.False(t, res.Attempted, "text=%q", text)
	}
	require.Zero(t, g.Failures("15551230001"))
}

func TestCheck_LockoutAfterThreeFailures(t *testing.T) {
	g, clock := newTestGuard(t)
	addr := "15551230001"

	for i := 0; i < 3; i++ {
		res := g.Check(addr, "wrongsecretphrase#1")
		require.True(t, res.Attempted)
		require.False(t, res.IsSecretMatch)
		require.False(t, res.IsLockedOut)
		clock.Advance(20 * time.Second)
	}
	require.Equal(t, 3, g.Failures(addr))

	clock.Advance(3 * time.Minute)
	res := g.Check(addr, "wrongsecretphrase#1")
	require.True(t, res.IsLockedOut)
	require.Equal(t, 3, g.Failures(addr), "locked attempt must not touch the counter")

	// Even the right secret is refused while locked out.
	res = g.Check(addr, testSecret)
	require.True(t, res.IsLockedOut)
	require.False(t, res.IsSecretMatch)
}

func TestCheck_LockoutDoesNotExtendWindow(t *testing.T) {
	g, clock := newTestGuard(t)
	addr := "15551230001"
	for i := 0; i < 3; i++ {
		g.Check(addr, "wrongsecretphrase#1")
	}

	clock.Advance(4 * time.Minute)
	require.True(t, g.Check(addr, "wrongsecretphrase#1").IsLockedOut)

	clock.Advance(time.Minute + time.Second)
	res := g.Check(addr, testSecret)
	require.True(t, res.IsSecretMatch)
	require.False(t, res.IsLockedOut)
}

func TestCheck_AttemptsResumeAfterWindow(t *testing.T) {
	g, clock := newTestGuard(t)
	addr := "15551230001"
	for i := 0; i < 3; i++ {
		g.Check(addr, "wrongsecretphrase#1")
	}
	clock.Advance(5*time.Minute + time.Second)

	res := g.Check(addr, "wrongsecretphrase#1")
	require.True(t, res.Attempted)
	require.False(t, res.IsLockedOut)
	require.Equal(t, 1, g.Failures(addr))
}

func TestCheck_MatchClearsFailures(t *testing.T) {
	g, _ := newTestGuard(t)
	addr := "15551230001"
	g.Check(addr, "wrongsecretphrase#1")
	g.Check(addr, "wrongsecretphrase#2")
	require.Equal(t, 2, g.Failures(addr))

	require.True(t, g.Check(addr, testSecret).IsSecretMatch)
	require.Zero(t, g.Failures(addr))
}

func TestCheck_AddressesAreIndependent(t *testing.T) {
	g, _ := newTestGuard(t)
	for i := 0; i < 3; i++ {
		g.Check("15551230001", "wrongsecretphrase#1")
	}
	require.True(t, g.Check("15551230001", "x#").IsLockedOut)
	require.False(t, g.Check("15551230002", "x#").IsLockedOut)
}

func TestCheck_FullShardKeepsLockouts(t *testing.T) {
	g, clock := newTestGuard(t)
	victim := "15551230001"
	for i := 0; i < 3; i++ {
		g.Check(victim, "wrongsecretphrase#1")
	}
	target := g.shardFor(victim)

	var flood []string
	for i := 0; len(flood) < maxTrackedPerShard+100; i++ {
		addr := fmt.Sprintf("1999%07d", i)
		if g.shardFor(addr) == target {
			flood = append(flood, addr)
		}
	}
	for _, addr := range flood {
		clock.Advance(time.Millisecond)
		g.Check(addr, "wrong#guess")
	}

	require.LessOrEqual(t, len(target.records), maxTrackedPerShard)
	require.True(t, g.Check(victim, testSecret).IsLockedOut)
	require.Equal(t, 3, g.Failures(victim))
	require.Zero(t, g.Failures(flood[0]), "oldest unlocked record is evicted first")
	require.Equal(t, 1, g.Failures(flood[len(flood)-1]))
}

func TestCheck_ConcurrentCallers(t *testing.T) {
	g, _ := newTestGuard(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("1555000%04d", i%5)
			g.Check(addr, "wrong#guess")
			g.Failures(addr)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 5; i++ {
		require.Equal(t, 3, g.Failures(fmt.Sprintf("1555000%04d", i)))
	}
}

func TestLooksLikeSecret(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"hello", false},
		{"REGISTER", false},
		{"pass#word", true},
		{"i am admin", true},
		{"ROOTaccess", true},
		{"averyveryverylongphrase", true},
		{"", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, LooksLikeSecret(tc.in), "in=%q", tc.in)
	}
}

func TestEqualConstantTime(t *testing.T) {
	require.True(t, equalConstantTime([]byte("abc"), []byte("abc")))
	require.False(t, equalConstantTime([]byte("abc"), []byte("abd")))
	require.False(t, equalConstantTime([]byte("abc"), []byte("abc\x00")))
	require.False(t, equalConstantTime([]byte(""), []byte("a")))
	require.True(t, equalConstantTime(nil, []byte{}))
}
