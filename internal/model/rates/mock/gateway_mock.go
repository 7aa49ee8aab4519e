package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gojuno/minimock/v3"
	"max.ks1230/currency-rates/internal/entity/currency"
)

// GatewayMock implements the remote snapshot gateway.
type GatewayMock struct {
	t minimock.Tester

	FetchMock mGatewayMockFetch

	beforeFetchCounter uint64
	afterFetchCounter  uint64
}

func NewGatewayMock(t minimock.Tester) *GatewayMock {
	m := &GatewayMock{t: t}
	if controller, ok := t.(minimock.MockController); ok {
		controller.RegisterMocker(m)
	}
	m.FetchMock = mGatewayMockFetch{mock: m}
	return m
}

type mGatewayMockFetch struct {
	mock *GatewayMock

	mu       sync.Mutex
	expected *string
	snap     currency.Snapshot
	err      error
	set      bool
	fn       func(ctx context.Context, sourceCode string) (currency.Snapshot, error)
}

func (mm *mGatewayMockFetch) Expect(sourceCode string) *mGatewayMockFetch {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.expected = &sourceCode
	return mm
}

func (mm *mGatewayMockFetch) Return(snap currency.Snapshot, err error) *GatewayMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.snap, mm.err, mm.set = snap, err, true
	return mm.mock
}

func (mm *mGatewayMockFetch) Set(fn func(ctx context.Context, sourceCode string) (currency.Snapshot, error)) *GatewayMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.fn, mm.set = fn, true
	return mm.mock
}

func (m *GatewayMock) Fetch(ctx context.Context, sourceCode string) (currency.Snapshot, error) {
	atomic.AddUint64(&m.beforeFetchCounter, 1)
	defer atomic.AddUint64(&m.afterFetchCounter, 1)

	mm := &m.FetchMock
	mm.mu.Lock()
	expected, snap, err, set, fn := mm.expected, mm.snap, mm.err, mm.set, mm.fn
	mm.mu.Unlock()

	if !set {
		m.t.Errorf("Unexpected call to GatewayMock.Fetch. %v", sourceCode)
		return currency.Snapshot{}, context.Canceled
	}
	if expected != nil && *expected != sourceCode {
		m.t.Errorf("GatewayMock.Fetch got unexpected source, want: %q, got: %q", *expected, sourceCode)
	}
	if fn != nil {
		return fn(ctx, sourceCode)
	}
	return snap, err
}

func (m *GatewayMock) FetchBeforeCounter() uint64 {
	return atomic.LoadUint64(&m.beforeFetchCounter)
}

func (m *GatewayMock) FetchAfterCounter() uint64 {
	return atomic.LoadUint64(&m.afterFetchCounter)
}

func (m *GatewayMock) MinimockFinish() {
	m.FetchMock.mu.Lock()
	set := m.FetchMock.set
	m.FetchMock.mu.Unlock()
	if set && m.FetchAfterCounter() == 0 {
		m.t.Error("Expected call to GatewayMock.Fetch")
	}
}

func (m *GatewayMock) MinimockWait(timeout time.Duration) {
	m.FetchMock.mu.Lock()
	set := m.FetchMock.set
	m.FetchMock.mu.Unlock()
	if !set {
		return
	}

	deadline := time.After(timeout)
	for m.FetchAfterCounter() == 0 {
		select {
		case <-deadline:
			m.MinimockFinish()
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
