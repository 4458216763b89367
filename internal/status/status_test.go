package status

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinite-experiment/vitals/internal/probe"
)

func report(results ...probe.ProbeResult) *probe.Report {
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	return probe.NewReport(at, at.Add(time.Second), results)
}

func passed(service, group string) probe.ProbeResult {
	return probe.ProbeResult{Service: service, Group: group, Check: probe.CheckHealth, State: probe.StatePassed}
}

func failed(service, group string) probe.ProbeResult {
	return probe.ProbeResult{Service: service, Group: group, Check: probe.CheckHealth, State: probe.StateFailed, ErrorKind: probe.KindConnection}
}

func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot(report(
		passed("objective-service", "goal-management"),
		failed("key-result-tracker", "goal-management"),
		passed("cycle-manager", "cycle-management"),
		passed("api-gateway", ""),
		probe.ProbeResult{Service: "api-gateway", Check: probe.PlaceholderEndpoints, State: probe.StateSkipped},
	))

	assert.Equal(t, StatusDegraded, snap.Status)
	assert.Equal(t, map[string]string{
		"goal-management":  GroupDown,
		"cycle-management": GroupUp,
		"ungrouped":        GroupUp,
	}, snap.Groups)
	assert.Equal(t, probe.Totals{Passed: 3, Failed: 1, Skipped: 1}, snap.Totals)
	assert.Len(t, snap.Services, 4)
	assert.Equal(t, "2026-10-18T12:00:01Z", snap.CheckedAt.Format(time.RFC3339))
}

func TestNewSnapshot_AllUp(t *testing.T) {
	snap := NewSnapshot(report(passed("objective-service", "goal-management")))
	assert.Equal(t, StatusUp, snap.Status)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := NewSnapshot(report(passed("a", "g")))
	require.NoError(t, s.Save(ctx, snap, 50*time.Millisecond))

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, got.RunID)

	assert.Eventually(t, func() bool {
		_, err := s.Latest(ctx)
		return err == ErrNoSnapshot
	}, time.Second, 10*time.Millisecond)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer s.Close()

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := NewSnapshot(report(passed("a", "g"), failed("b", "g")))
	require.NoError(t, s.Save(ctx, snap, time.Minute))

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, got.RunID)
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, snap.Services, got.Services)
	assert.True(t, snap.CheckedAt.Equal(got.CheckedAt))

	ttl, err := s.TTL(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(2 * time.Minute)
	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "fleet")
	mr.SetError("ERR server unavailable")

	_, err := s.Latest(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshot)
}

type fakeRunner struct {
	runs    atomic.Int32
	results []probe.ProbeResult
}

func (f *fakeRunner) Run(ctx context.Context) *probe.Report {
	f.runs.Add(1)
	return report(f.results...)
}

func TestWatcher_RunOnceStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	w := NewWatcher(&fakeRunner{results: []probe.ProbeResult{failed("a", "g")}}, store, time.Second)

	snap := w.RunOnce(ctx)
	require.NotNil(t, snap)
	assert.Equal(t, 2*time.Second, w.TTL())

	got, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, got.RunID)
	assert.Equal(t, StatusDegraded, got.Status)
}

func TestWatcher_StartRunsImmediatelyAndOnTick(t *testing.T) {
	runner := &fakeRunner{results: []probe.ProbeResult{passed("a", "g")}}
	w := NewWatcher(runner, NewMemoryStore(time.Minute), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_CancelledRunNotStored(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	w := NewWatcher(&fakeRunner{}, store, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, w.RunOnce(ctx))
	_, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
