package policycache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"holiday-policy-bot/internal/domain"
)

type fakeFetcher struct {
	mu      sync.Mutex
	results []string
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context) string {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return domain.PolicyUnavailable
	}
	out := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRefresher(t *testing.T, cache *Cache, f Fetcher, interval time.Duration) *Refresher {
	t.Helper()
	r, err := NewRefresher(cache, f, interval, quietLogger())
	require.NoError(t, err)
	return r
}

func TestCache_StartsEmptyAndReplaces(t *testing.T) {
	c := New()
	require.Equal(t, "", c.Get())
	c.Set("first")
	c.Set("second")
	require.Equal(t, "second", c.Get())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	seen := make(chan string, 20)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set("a")
			c.Set("b")
		}()
		go func() {
			defer wg.Done()
			seen <- c.Get()
		}()
	}
	wg.Wait()
	close(seen)

	for v := range seen {
		require.Contains(t, []string{"", "a", "b"}, v)
	}
	require.Equal(t, "b", c.Get())
}

func TestNewRefresher_ValidatesDependencies(t *testing.T) {
	_, err := NewRefresher(nil, &fakeFetcher{}, time.Hour, nil)
	require.Error(t, err)

	_, err = NewRefresher(New(), nil, time.Hour, nil)
	require.Error(t, err)
}

func TestNewRefresher_DefaultInterval(t *testing.T) {
	r := newTestRefresher(t, New(), &fakeFetcher{}, 0)
	require.Equal(t, DefaultInterval, r.interval)
	require.Len(t, r.cron.Entries(), 1)
}

func TestRefreshNow_CommitsSuccessfulFetch(t *testing.T) {
	cache := New()
	r := newTestRefresher(t, cache, &fakeFetcher{results: []string{"Employees receive 20 paid vacation days annually."}}, time.Hour)

	require.True(t, r.RefreshNow(context.Background()))
	require.Equal(t, "Employees receive 20 paid vacation days annually.", cache.Get())
}

func TestRefreshNow_FailureKeepsPreviousValue(t *testing.T) {
	cache := New()
	cache.Set("good policy")
	r := newTestRefresher(t, cache, &fakeFetcher{results: []string{domain.PolicyUnavailable}}, time.Hour)

	require.False(t, r.RefreshNow(context.Background()))
	require.Equal(t, "good policy", cache.Get())
}

func TestRefreshNow_FailureOnEmptyCacheLeavesItEmpty(t *testing.T) {
	cache := New()
	r := newTestRefresher(t, cache, &fakeFetcher{}, time.Hour)

	require.False(t, r.RefreshNow(context.Background()))
	require.Equal(t, "", cache.Get())
}

func TestRefreshNow_RecoversAfterFailure(t *testing.T) {
	cache := New()
	cache.Set("old policy")
	r := newTestRefresher(t, cache, &fakeFetcher{results: []string{domain.PolicyUnavailable, "new policy"}}, time.Hour)

	require.False(t, r.RefreshNow(context.Background()))
	require.Equal(t, "old policy", cache.Get())
	require.True(t, r.RefreshNow(context.Background()))
	require.Equal(t, "new policy", cache.Get())
}

func TestRefresher_ScheduledRefreshFires(t *testing.T) {
	defer goleak.VerifyNone(t)

	cache := New()
	f := &fakeFetcher{results: []string{"scheduled policy"}}
	r := newTestRefresher(t, cache, f, time.Second)

	r.Start()
	require.Eventually(t, func() bool {
		return cache.Get() == "scheduled policy"
	}, 5*time.Second, 20*time.Millisecond)
	r.Stop()
}

func TestRefresher_StopWithoutRunsDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &fakeFetcher{}
	r := newTestRefresher(t, New(), f, time.Hour)
	r.Start()
	r.Stop()
	require.Equal(t, int32(0), f.calls.Load())
}

func TestCronLogger_ForwardsToSlog(t *testing.T) {
	l := cronLogger{logger: quietLogger()}
	require.NotPanics(t, func() {
		l.Info("start", "entries", 1)
		l.Error(context.Canceled, "job failed", "entry", 1)
	})
}
