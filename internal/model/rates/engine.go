package rates

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/customerr"
	"max.ks1230/currency-rates/internal/model/freshness"
	"max.ks1230/currency-rates/internal/model/snapshots"
)

type gateway interface {
	Fetch(ctx context.Context, sourceCode string) (currency.Snapshot, error)
}

type cacheRegistry interface {
	Store(sourceCode string) *snapshots.Store
}

type preferenceStore interface {
	Read(ctx context.Context) (currency.Pair, error)
	SetSource(ctx context.Context, code string) error
	SetTarget(ctx context.Context, code string) error
	Swap(ctx context.Context) (currency.Pair, error)
	Subscribe() (<-chan currency.Pair, func())
}

type updatesPublisher interface {
	PublishUpdate(ctx context.Context, snap currency.Snapshot) error
}

type Option func(*Engine)

// WithClock replaces time.Now for freshness decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPublisher announces every freshly fetched snapshot.
func WithPublisher(p updatesPublisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// Engine resolves the current rate for the preferred currency pair.
//
// Every resolution takes a version number when it starts. Its result is
// committed only if no newer resolution has started in the meantime, so a
// slow, superseded fetch can still fill the cache but never overwrites the
// visible rate.
type Engine struct {
	registry  cacheRegistry
	gateway   gateway
	prefs     preferenceStore
	publisher updatesPublisher
	now       func() time.Time

	fetches singleflight.Group

	mu      sync.Mutex
	version uint64
	current currency.Rate
	updates chan currency.Rate

	signal Signal

	ready     chan struct{}
	readyOnce sync.Once

	wg sync.WaitGroup
}

func NewEngine(registry cacheRegistry, gateway gateway, prefs preferenceStore, initial currency.Rate, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		gateway:  gateway,
		prefs:    prefs,
		now:      time.Now,
		current:  initial,
		updates:  make(chan currency.Rate, 1),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Current returns the latest committed rate.
func (e *Engine) Current() currency.Rate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Updates delivers committed rates. A slow reader only gets the latest one.
func (e *Engine) Updates() <-chan currency.Rate {
	return e.updates
}

// Ready is closed once the first resolution has settled, successfully or not.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Pair returns the stored preference, which may be ahead of Current.
func (e *Engine) Pair(ctx context.Context) (currency.Pair, error) {
	return e.prefs.Read(ctx)
}

func (e *Engine) Signal() *Signal {
	return &e.signal
}

// ConsumeOutcome takes the pending refresh outcome, if any.
func (e *Engine) ConsumeOutcome() (RefreshOutcome, bool) {
	return e.signal.Consume()
}

func (e *Engine) PendingOutcome() (RefreshOutcome, bool) {
	return e.signal.Peek()
}

// Run resolves the current pair and then every pair change until ctx is done.
// It waits for in-flight resolutions before returning.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("Engine - start")
	defer logger.Info("Engine - end")

	changes, unsubscribe := e.prefs.Subscribe()
	defer unsubscribe()
	defer e.wg.Wait()

	pair, err := e.prefs.Read(ctx)
	if err != nil {
		return errors.Wrap(err, "read preference")
	}
	e.spawn(ctx, pair)

	for {
		select {
		case <-ctx.Done():
			return nil
		case pair, ok := <-changes:
			if !ok {
				return nil
			}
			e.spawn(ctx, pair)
		}
	}
}

func (e *Engine) spawn(ctx context.Context, pair currency.Pair) {
	version := e.begin()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.resolveAndCommit(ctx, version, pair); err != nil {
			logger.Error("resolution failed, keeping last rate",
				zap.Stringer("pair", pair), zap.Error(err))
		}
	}()
}

// Resync resolves the current pair once, like a preference change would.
//
// The version is taken before the pair is read: a pair change that lands in
// between starts a newer resolution, so the stale pair cannot commit.
func (e *Engine) Resync(ctx context.Context) error {
	version := e.begin()
	pair, err := e.prefs.Read(ctx)
	if err != nil {
		e.markReady()
		return errors.Wrap(err, "read preference")
	}
	return e.resolveAndCommit(ctx, version, pair)
}

func (e *Engine) resolveAndCommit(ctx context.Context, version uint64, pair currency.Pair) error {
	defer e.markReady()

	rate, _, err := e.resolve(ctx, pair)
	if err != nil {
		return err
	}
	e.commit(version, rate)
	return nil
}

// Refresh resolves the current pair once and reports how it went. The
// outcome is also left pending for ConsumeOutcome.
func (e *Engine) Refresh(ctx context.Context) RefreshOutcome {
	logger.Info("Refresh - start")
	defer logger.Info("Refresh - end")

	outcome := e.refresh(ctx)
	observeRefresh(outcome)
	return e.signal.Publish(outcome)
}

// Acknowledge clears o from the signal unless a newer outcome replaced it.
func (e *Engine) Acknowledge(o RefreshOutcome) bool {
	return e.signal.ConsumeIf(o)
}

func (e *Engine) refresh(ctx context.Context) RefreshOutcome {
	// version first, see Resync
	version := e.begin()
	defer e.markReady()

	pair, err := e.prefs.Read(ctx)
	if err != nil {
		return RefreshOutcome{Kind: Failed, Err: errors.Wrap(err, "read preference")}
	}

	rate, fetched, err := e.resolve(ctx, pair)
	if err != nil {
		return RefreshOutcome{Kind: Failed, Err: err}
	}
	e.commit(version, rate)
	if fetched {
		return RefreshOutcome{Kind: Updated}
	}
	return RefreshOutcome{Kind: SkippedFresh}
}

func (e *Engine) Swap(ctx context.Context) error {
	_, err := e.prefs.Swap(ctx)
	return err
}

func (e *Engine) SetTarget(ctx context.Context, code string) error {
	code = currency.Normalize(code)
	if !currency.ValidCode(code) {
		return errors.Wrap(customerr.ErrInvalidCurrency, code)
	}
	return e.prefs.SetTarget(ctx, code)
}

func (e *Engine) SetSource(ctx context.Context, code string) error {
	code = currency.Normalize(code)
	if !currency.ValidCode(code) {
		return errors.Wrap(customerr.ErrInvalidCurrency, code)
	}
	return e.prefs.SetSource(ctx, code)
}

func (e *Engine) begin() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version++
	return e.version
}

func (e *Engine) commit(version uint64, rate currency.Rate) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if version != e.version {
		counterSuperseded.Inc()
		logger.Info("resolution superseded, dropping result",
			zap.Uint64("version", version), zap.Uint64("latest", e.version),
			zap.String("source", rate.Source), zap.String("target", rate.Target))
		return false
	}

	e.current = rate
	gaugeCurrentRate.WithLabelValues(rate.Source, rate.Target).Set(rate.Value)
	select {
	case <-e.updates:
	default:
	}
	e.updates <- rate
	return true
}

func (e *Engine) markReady() {
	e.readyOnce.Do(func() {
		close(e.ready)
	})
}

// resolve returns the rate for pair from the cache when it is fresh,
// otherwise from the gateway. fetched tells which path was taken.
func (e *Engine) resolve(ctx context.Context, pair currency.Pair) (rate currency.Rate, fetched bool, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "resolveRate")
	defer span.Finish()
	span.SetTag("source", pair.Source)
	span.SetTag("target", pair.Target)

	cached := e.registry.Store(pair.Source).Read(ctx)
	if freshness.IsFresh(cached, e.now()) {
		observeCacheLookup(true)
		rate = cached.Project(pair.Target)
		rate.FromCache = true
		return rate, false, nil
	}
	observeCacheLookup(false)

	snap, err := e.fetch(ctx, pair.Source)
	if err != nil {
		ext.Error.Set(span, true)
		return currency.Rate{}, false, err
	}
	return snap.Project(pair.Target), true, nil
}

// fetch collapses concurrent requests for the same source into one gateway
// call and one cache write. The shared call outlives the caller that started
// it; each caller only stops waiting when its own ctx is done.
func (e *Engine) fetch(ctx context.Context, sourceCode string) (currency.Snapshot, error) {
	ch := e.fetches.DoChan(sourceCode, func() (interface{}, error) {
		return e.fetchAndStore(detach(ctx), sourceCode)
	})

	select {
	case <-ctx.Done():
		return currency.Snapshot{}, errors.Wrap(ctx.Err(), "wait for fetch")
	case res := <-ch:
		if res.Shared {
			logger.Debug("joined in-flight fetch", zap.String("source", sourceCode))
		}
		if res.Err != nil {
			return currency.Snapshot{}, res.Err
		}
		return res.Val.(currency.Snapshot), nil
	}
}

func (e *Engine) fetchAndStore(ctx context.Context, sourceCode string) (currency.Snapshot, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "fetchRates")
	defer span.Finish()
	span.SetTag("source", sourceCode)

	logger.Info("fetching rates", zap.String("source", sourceCode))

	start := time.Now()
	snap, err := e.gateway.Fetch(ctx, sourceCode)
	if err == nil && freshness.IsEmpty(snap) {
		err = errors.New("empty rate table")
	}
	observeFetch(time.Since(start), err != nil)
	if err != nil {
		ext.Error.Set(span, true)
		var netErr *customerr.NetworkError
		if !errors.As(err, &netErr) {
			err = &customerr.NetworkError{Source: sourceCode, Err: err}
		}
		return currency.Snapshot{}, err
	}

	if err = e.registry.Store(sourceCode).Write(ctx, snap); err != nil {
		// the fetched table is still good to show
		logger.Error("cannot cache fetched rates", zap.String("source", sourceCode), zap.Error(err))
	}
	if e.publisher != nil {
		if err = e.publisher.PublishUpdate(ctx, snap); err != nil {
			logger.Error("cannot publish rates update", zap.String("source", sourceCode), zap.Error(err))
		}
	}
	return snap, nil
}
