// Package mock holds hand-written test doubles that plug into a
// minimock.Controller, so a test can Finish() them with the rest.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gojuno/minimock/v3"
)

// BlobStorageMock implements the Load/Save storage contract.
type BlobStorageMock struct {
	t minimock.Tester

	LoadMock mBlobStorageMockLoad
	SaveMock mBlobStorageMockSave

	afterLoadCounter uint64
	afterSaveCounter uint64
}

func NewBlobStorageMock(t minimock.Tester) *BlobStorageMock {
	m := &BlobStorageMock{t: t}
	if controller, ok := t.(minimock.MockController); ok {
		controller.RegisterMocker(m)
	}
	m.LoadMock = mBlobStorageMockLoad{mock: m}
	m.SaveMock = mBlobStorageMockSave{mock: m}
	return m
}

type mBlobStorageMockLoad struct {
	mock *BlobStorageMock

	mu       sync.Mutex
	expected *string
	data     []byte
	err      error
	set      bool
	fn       func(ctx context.Context, key string) ([]byte, error)
}

// Expect pins the key Load must be called with.
func (mm *mBlobStorageMockLoad) Expect(key string) *mBlobStorageMockLoad {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.expected = &key
	return mm
}

func (mm *mBlobStorageMockLoad) Return(data []byte, err error) *BlobStorageMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.data, mm.err, mm.set = data, err, true
	return mm.mock
}

func (mm *mBlobStorageMockLoad) Set(fn func(ctx context.Context, key string) ([]byte, error)) *BlobStorageMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.fn, mm.set = fn, true
	return mm.mock
}

func (m *BlobStorageMock) Load(ctx context.Context, key string) ([]byte, error) {
	defer atomic.AddUint64(&m.afterLoadCounter, 1)

	mm := &m.LoadMock
	mm.mu.Lock()
	expected, data, err, set, fn := mm.expected, mm.data, mm.err, mm.set, mm.fn
	mm.mu.Unlock()

	if !set {
		m.t.Errorf("Unexpected call to BlobStorageMock.Load. %v", key)
		return nil, nil
	}
	if expected != nil && *expected != key {
		m.t.Errorf("BlobStorageMock.Load got unexpected key, want: %q, got: %q", *expected, key)
	}
	if fn != nil {
		return fn(ctx, key)
	}
	return data, err
}

func (m *BlobStorageMock) LoadAfterCounter() uint64 {
	return atomic.LoadUint64(&m.afterLoadCounter)
}

type mBlobStorageMockSave struct {
	mock *BlobStorageMock

	mu  sync.Mutex
	err error
	set bool
	fn  func(ctx context.Context, key string, data []byte) error
}

func (mm *mBlobStorageMockSave) Return(err error) *BlobStorageMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.err, mm.set = err, true
	return mm.mock
}

func (mm *mBlobStorageMockSave) Set(fn func(ctx context.Context, key string, data []byte) error) *BlobStorageMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.fn, mm.set = fn, true
	return mm.mock
}

func (m *BlobStorageMock) Save(ctx context.Context, key string, data []byte) error {
	defer atomic.AddUint64(&m.afterSaveCounter, 1)

	mm := &m.SaveMock
	mm.mu.Lock()
	err, set, fn := mm.err, mm.set, mm.fn
	mm.mu.Unlock()

	if !set {
		m.t.Errorf("Unexpected call to BlobStorageMock.Save. %v", key)
		return nil
	}
	if fn != nil {
		return fn(ctx, key, data)
	}
	return err
}

func (m *BlobStorageMock) SaveAfterCounter() uint64 {
	return atomic.LoadUint64(&m.afterSaveCounter)
}

// MinimockFinish reports configured methods that were never called.
func (m *BlobStorageMock) MinimockFinish() {
	m.LoadMock.mu.Lock()
	loadSet := m.LoadMock.set
	m.LoadMock.mu.Unlock()
	if loadSet && m.LoadAfterCounter() == 0 {
		m.t.Error("Expected call to BlobStorageMock.Load")
	}

	m.SaveMock.mu.Lock()
	saveSet := m.SaveMock.set
	m.SaveMock.mu.Unlock()
	if saveSet && m.SaveAfterCounter() == 0 {
		m.t.Error("Expected call to BlobStorageMock.Save")
	}
}

// MinimockWait waits for every configured method to be called or for the timeout.
func (m *BlobStorageMock) MinimockWait(timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		if m.minimockDone() {
			return
		}
		select {
		case <-deadline:
			m.MinimockFinish()
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (m *BlobStorageMock) minimockDone() bool {
	m.LoadMock.mu.Lock()
	loadSet := m.LoadMock.set
	m.LoadMock.mu.Unlock()
	m.SaveMock.mu.Lock()
	saveSet := m.SaveMock.set
	m.SaveMock.mu.Unlock()
	return (!loadSet || m.LoadAfterCounter() > 0) && (!saveSet || m.SaveAfterCounter() > 0)
}
