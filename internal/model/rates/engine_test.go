package rates

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gojuno/minimock/v3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/model/customerr"
	"max.ks1230/currency-rates/internal/model/freshness"
	"max.ks1230/currency-rates/internal/model/preference"
	"max.ks1230/currency-rates/internal/model/rates/mock"
	"max.ks1230/currency-rates/internal/model/snapshots"
	"max.ks1230/currency-rates/internal/model/storage"
)

var fetchedAt = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

type pairDefaults struct{}

func (pairDefaults) DefaultSource() string { return currency.USD }
func (pairDefaults) DefaultTarget() string { return currency.EUR }

type fixture struct {
	registry *snapshots.Registry
	prefs    *preference.Store
}

func newFixture() fixture {
	backend := storage.NewInMemStorage()
	return fixture{
		registry: snapshots.NewRegistry(backend),
		prefs:    preference.NewStore(backend, pairDefaults{}),
	}
}

func snapshot(source string, at time.Time, rates map[string]float64) currency.Snapshot {
	return currency.Snapshot{
		SourceCode: source,
		AsOfDate:   time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
		FetchedAt:  at,
		Rates:      rates,
	}
}

func clockAt(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func Test_OnRefreshWithFreshCache_ShouldSkipFetch(t *testing.T) {
	ctx := context.Background()
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	cached := snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9})
	require.NoError(t, f.registry.Store(currency.USD).Write(ctx, cached))
	gw := mock.NewGatewayMock(m)

	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, clockAt(fetchedAt.Add(22*time.Hour)))
	outcome := e.Refresh(ctx)

	assert.Equal(t, SkippedFresh, outcome.Kind)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, 0.9, e.Current().Value)
	assert.True(t, e.Current().FromCache)
	assert.Zero(t, gw.FetchAfterCounter())
}

func Test_OnRefreshWithStaleCache_ShouldFetchAndStore(t *testing.T) {
	ctx := context.Background()
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	cached := snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9})
	require.NoError(t, f.registry.Store(currency.USD).Write(ctx, cached))

	later := fetchedAt.Add(24 * time.Hour)
	fetched := snapshot(currency.USD, later, map[string]float64{currency.EUR: 0.95})
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Expect(currency.USD).Return(fetched, nil)

	e := NewEngine(f.registry, gw, f.prefs, cached.Project(currency.EUR), clockAt(later))
	outcome := e.Refresh(ctx)

	assert.Equal(t, Updated, outcome.Kind)
	assert.Equal(t, 0.95, e.Current().Value)
	assert.False(t, e.Current().FromCache)
	assert.Equal(t, fetched, f.registry.Store(currency.USD).Read(ctx))
}

func Test_OnRefreshWithFailingGateway_ShouldKeepCurrentRate(t *testing.T) {
	ctx := context.Background()
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	cached := snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9})
	require.NoError(t, f.registry.Store(currency.USD).Write(ctx, cached))
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Return(currency.Snapshot{}, errors.New("connection reset"))

	e := NewEngine(f.registry, gw, f.prefs, cached.Project(currency.EUR), clockAt(fetchedAt.Add(24*time.Hour)))
	outcome := e.Refresh(ctx)

	assert.Equal(t, Failed, outcome.Kind)
	var netErr *customerr.NetworkError
	require.True(t, errors.As(outcome.Err, &netErr))
	assert.Equal(t, currency.USD, netErr.Source)
	assert.Contains(t, outcome.Err.Error(), "connection reset")
	assert.Equal(t, 0.9, e.Current().Value)
	assert.Equal(t, cached, f.registry.Store(currency.USD).Read(ctx))
}

func Test_OnMissingTarget_ShouldResolveToOne(t *testing.T) {
	ctx := context.Background()
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	require.NoError(t, f.prefs.SetTarget(ctx, currency.JPY))
	cached := snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9})
	require.NoError(t, f.registry.Store(currency.USD).Write(ctx, cached))

	e := NewEngine(f.registry, mock.NewGatewayMock(m), f.prefs, currency.Rate{}, clockAt(fetchedAt))
	e.Refresh(ctx)

	assert.Equal(t, 1.0, e.Current().Value)
	assert.Equal(t, currency.JPY, e.Current().Target)
}

func Test_OnEmptyFetchedTable_ShouldFail(t *testing.T) {
	ctx := context.Background()
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Return(currency.Snapshot{SourceCode: currency.USD}, nil)

	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, clockAt(fetchedAt))
	outcome := e.Refresh(ctx)

	assert.Equal(t, Failed, outcome.Kind)
	assert.True(t, freshness.IsEmpty(f.registry.Store(currency.USD).Read(ctx)))
}

func Test_OnRefresh_ShouldLeaveOutcomeUntilConsumed(t *testing.T) {
	ctx := context.Background()
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	require.NoError(t, f.registry.Store(currency.USD).Write(ctx,
		snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9})))

	e := NewEngine(f.registry, mock.NewGatewayMock(m), f.prefs, currency.Rate{}, clockAt(fetchedAt))
	_, ok := e.PendingOutcome()
	require.False(t, ok)

	e.Refresh(ctx)

	peeked, ok := e.PendingOutcome()
	require.True(t, ok)
	assert.Equal(t, SkippedFresh, peeked.Kind)

	consumed, ok := e.ConsumeOutcome()
	require.True(t, ok)
	assert.Equal(t, SkippedFresh, consumed.Kind)

	_, ok = e.ConsumeOutcome()
	assert.False(t, ok)
}

func Test_OnRefresh_ShouldCloseReady(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Return(currency.Snapshot{}, errors.New("offline"))
	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, clockAt(fetchedAt))

	e.Refresh(context.Background())

	select {
	case <-e.Ready():
	default:
		t.Fatal("engine is not ready after first resolution")
	}
}

func Test_OnNewerPairWhileFetching_ShouldKeepLatestResult(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	usdStarted, releaseUSD := make(chan struct{}), make(chan struct{})
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Set(func(ctx context.Context, sourceCode string) (currency.Snapshot, error) {
		switch sourceCode {
		case currency.USD:
			close(usdStarted)
			<-releaseUSD
			return snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9}), nil
		case currency.GBP:
			return snapshot(currency.GBP, fetchedAt, map[string]float64{currency.EUR: 1.17}), nil
		}
		return currency.Snapshot{}, errors.Errorf("unexpected source %s", sourceCode)
	})

	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, clockAt(fetchedAt))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	<-usdStarted
	require.NoError(t, e.SetSource(ctx, "gbp"))

	select {
	case r := <-e.Updates():
		assert.Equal(t, currency.GBP, r.Source)
		assert.Equal(t, 1.17, r.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("no rate for the newer pair")
	}

	close(releaseUSD)
	assert.Eventually(t, func() bool {
		return !freshness.IsEmpty(f.registry.Store(currency.USD).Read(ctx))
	}, 5*time.Second, 10*time.Millisecond, "superseded fetch should still fill the cache")

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, currency.GBP, e.Current().Source)
	assert.Equal(t, 1.17, e.Current().Value)
	assert.Len(t, e.Updates(), 0)
}

func Test_OnSwap_ShouldResolveSwappedPair(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Set(func(_ context.Context, sourceCode string) (currency.Snapshot, error) {
		if sourceCode == currency.EUR {
			return snapshot(currency.EUR, fetchedAt, map[string]float64{currency.USD: 1.1}), nil
		}
		return snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9}), nil
	})

	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, clockAt(fetchedAt))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	first := <-e.Updates()
	assert.Equal(t, currency.Pair{Source: currency.USD, Target: currency.EUR}, currency.Pair{Source: first.Source, Target: first.Target})

	require.NoError(t, e.Swap(ctx))

	select {
	case r := <-e.Updates():
		assert.Equal(t, currency.EUR, r.Source)
		assert.Equal(t, currency.USD, r.Target)
		assert.Equal(t, 1.1, r.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("no rate after swap")
	}

	cancel()
	require.NoError(t, <-done)
}

func Test_OnReactiveFailure_ShouldEmitNothing(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Return(currency.Snapshot{}, errors.New("dns failure"))
	initial := currency.Rate{Source: currency.USD, Target: currency.EUR, Value: 0.8}

	e := NewEngine(f.registry, gw, f.prefs, initial, clockAt(fetchedAt))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	<-e.Ready()
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, initial, e.Current())
	assert.Len(t, e.Updates(), 0)
	_, ok := e.PendingOutcome()
	assert.False(t, ok)
}

// countingClock reports how many resolutions have passed their cache check.
func countingClock(calls *int32) Option {
	return WithClock(func() time.Time {
		atomic.AddInt32(calls, 1)
		return fetchedAt
	})
}

func Test_OnConcurrentResolutionsOfSameSource_ShouldFetchOnce(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	release := make(chan struct{})
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Set(func(_ context.Context, _ string) (currency.Snapshot, error) {
		<-release
		return snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9}), nil
	})

	var clockCalls int32
	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, countingClock(&clockCalls))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); assert.NoError(t, e.Resync(ctx)) }()
	require.Eventually(t, func() bool { return gw.FetchBeforeCounter() == 1 }, 5*time.Second, time.Millisecond)
	go func() { defer wg.Done(); assert.NoError(t, e.Resync(ctx)) }()
	// the second resolution found the cache empty while the first fetch is blocked
	require.Eventually(t, func() bool { return atomic.LoadInt32(&clockCalls) == 2 }, 5*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, uint64(1), gw.FetchBeforeCounter())
	assert.Equal(t, 0.9, e.Current().Value)
}

func Test_OnCancelledStarterOfSharedFetch_ShouldNotFailJoinedResolution(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	release := make(chan struct{})
	gatewayCtxErr := make(chan error, 1)
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Set(func(ctx context.Context, _ string) (currency.Snapshot, error) {
		<-release
		gatewayCtxErr <- ctx.Err()
		return snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9}), nil
	})

	var clockCalls int32
	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, countingClock(&clockCalls))

	starterCtx, cancelStarter := context.WithCancel(context.Background())
	starter := make(chan error, 1)
	go func() { starter <- e.Resync(starterCtx) }()
	require.Eventually(t, func() bool { return gw.FetchBeforeCounter() == 1 }, 5*time.Second, time.Millisecond)

	joined := make(chan error, 1)
	go func() { joined <- e.Resync(context.Background()) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&clockCalls) == 2 }, 5*time.Second, time.Millisecond)

	cancelStarter()
	assert.ErrorIs(t, <-starter, context.Canceled)

	close(release)
	require.NoError(t, <-joined)
	assert.NoError(t, <-gatewayCtxErr)
	assert.Equal(t, uint64(1), gw.FetchBeforeCounter())
	assert.Equal(t, 0.9, e.Current().Value)
	assert.False(t, freshness.IsEmpty(f.registry.Store(currency.USD).Read(context.Background())))
}

// stallingPrefs holds one Read open after it has read the stored pair.
type stallingPrefs struct {
	*preference.Store

	armed   int32
	stalled chan struct{}
	release chan struct{}
}

func newStallingPrefs(store *preference.Store) *stallingPrefs {
	return &stallingPrefs{
		Store:   store,
		stalled: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *stallingPrefs) Read(ctx context.Context) (currency.Pair, error) {
	pair, err := p.Store.Read(ctx)
	if atomic.CompareAndSwapInt32(&p.armed, 1, 0) {
		close(p.stalled)
		<-p.release
	}
	return pair, err
}

func nextUpdate(t *testing.T, e *Engine) currency.Rate {
	t.Helper()
	select {
	case r := <-e.Updates():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no rate update")
		return currency.Rate{}
	}
}

func pairOf(r currency.Rate) currency.Pair {
	return currency.Pair{Source: r.Source, Target: r.Target}
}

// assertPairChangeWins runs call with its preference read held open across
// change, and checks the rate of the changed pair survives.
func assertPairChangeWins(
	t *testing.T,
	call func(ctx context.Context, e *Engine),
	change func(ctx context.Context, e *Engine) error,
	want currency.Pair,
) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	prefs := newStallingPrefs(f.prefs)
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Set(func(_ context.Context, sourceCode string) (currency.Snapshot, error) {
		if sourceCode == currency.GBP {
			return snapshot(currency.GBP, fetchedAt, map[string]float64{currency.EUR: 1.17}), nil
		}
		return snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9, currency.GBP: 0.8}), nil
	})

	e := NewEngine(f.registry, gw, prefs, currency.Rate{}, clockAt(fetchedAt))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Equal(t, currency.Pair{Source: currency.USD, Target: currency.EUR}, pairOf(nextUpdate(t, e)))

	atomic.StoreInt32(&prefs.armed, 1)
	called := make(chan struct{})
	go func() {
		defer close(called)
		call(ctx, e)
	}()
	<-prefs.stalled

	require.NoError(t, change(ctx, e))
	assert.Equal(t, want, pairOf(nextUpdate(t, e)))

	close(prefs.release)
	<-called

	assert.Equal(t, want, pairOf(e.Current()))
	stored, err := f.prefs.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, stored)

	cancel()
	require.NoError(t, <-done)
}

func refreshCall(ctx context.Context, e *Engine) {
	e.Refresh(ctx)
}

func resyncCall(ctx context.Context, e *Engine) {
	_ = e.Resync(ctx)
}

func setSourceGBP(ctx context.Context, e *Engine) error {
	return e.SetSource(ctx, currency.GBP)
}

func setTargetGBP(ctx context.Context, e *Engine) error {
	return e.SetTarget(ctx, currency.GBP)
}

func Test_OnRefreshReadingOldPairDuringSetSource_ShouldKeepNewPair(t *testing.T) {
	assertPairChangeWins(t, refreshCall, setSourceGBP, currency.Pair{Source: currency.GBP, Target: currency.EUR})
}

func Test_OnRefreshReadingOldPairDuringSetTarget_ShouldKeepNewPair(t *testing.T) {
	assertPairChangeWins(t, refreshCall, setTargetGBP, currency.Pair{Source: currency.USD, Target: currency.GBP})
}

func Test_OnResyncReadingOldPairDuringSetSource_ShouldKeepNewPair(t *testing.T) {
	assertPairChangeWins(t, resyncCall, setSourceGBP, currency.Pair{Source: currency.GBP, Target: currency.EUR})
}

type publisherFunc func(ctx context.Context, snap currency.Snapshot) error

func (f publisherFunc) PublishUpdate(ctx context.Context, snap currency.Snapshot) error {
	return f(ctx, snap)
}

func Test_OnFetch_ShouldPublishUpdate(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	fetched := snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9})
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Return(fetched, nil)

	var published []currency.Snapshot
	pub := publisherFunc(func(_ context.Context, snap currency.Snapshot) error {
		published = append(published, snap)
		return errors.New("broker down")
	})

	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, clockAt(fetchedAt), WithPublisher(pub))
	outcome := e.Refresh(context.Background())

	assert.Equal(t, Updated, outcome.Kind)
	assert.Equal(t, []currency.Snapshot{fetched}, published)
}

func Test_OnInvalidTarget_ShouldReject(t *testing.T) {
	ctx := context.Background()
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	e := NewEngine(f.registry, mock.NewGatewayMock(m), f.prefs, currency.Rate{})

	err := e.SetTarget(ctx, "euro")

	assert.ErrorIs(t, err, customerr.ErrInvalidCurrency)
	p, err := f.prefs.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, currency.EUR, p.Target)
}

func Test_OutcomeKind_String(t *testing.T) {
	assert.Equal(t, "skipped_fresh", SkippedFresh.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", OutcomeKind(0).String())
}

func Test_OnPublish_ShouldNotifyOnceWithoutConsuming(t *testing.T) {
	var s Signal

	s.Publish(RefreshOutcome{Kind: Updated})
	s.Publish(RefreshOutcome{Kind: SkippedFresh})

	select {
	case <-s.C():
	default:
		t.Fatal("no notification after publish")
	}
	select {
	case <-s.C():
		t.Fatal("notifications are not coalesced")
	default:
	}

	o, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, SkippedFresh, o.Kind)
}

func Test_OnNewerOutcome_ShouldKeepItPendingOnAcknowledge(t *testing.T) {
	m := minimock.NewController(t)
	defer m.Finish()

	f := newFixture()
	gw := mock.NewGatewayMock(m)
	gw.FetchMock.Return(snapshot(currency.USD, fetchedAt, map[string]float64{currency.EUR: 0.9}), nil)
	e := NewEngine(f.registry, gw, f.prefs, currency.Rate{}, clockAt(fetchedAt))

	own := e.Refresh(context.Background())
	remote := e.Signal().Publish(RefreshOutcome{Kind: Failed, Err: errors.New("remote")})

	assert.False(t, e.Acknowledge(own))
	pending, ok := e.PendingOutcome()
	require.True(t, ok)
	assert.Equal(t, Failed, pending.Kind)

	assert.True(t, e.Acknowledge(remote))
	_, ok = e.PendingOutcome()
	assert.False(t, ok)
}

func Test_OnUnpublishedOutcome_ShouldNotConsume(t *testing.T) {
	var s Signal
	s.Publish(RefreshOutcome{Kind: Updated})

	assert.False(t, s.ConsumeIf(RefreshOutcome{Kind: Updated}))
	_, ok := s.Peek()
	assert.True(t, ok)
}
