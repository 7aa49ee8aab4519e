package mock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gojuno/minimock/v3"
)

// MessageSenderMock implements the telegram sender used by messages.Service.
type MessageSenderMock struct {
	t minimock.Tester

	SendMessageMock mMessageSenderMockSendMessage

	afterSendMessageCounter uint64
}

func NewMessageSenderMock(t minimock.Tester) *MessageSenderMock {
	m := &MessageSenderMock{t: t}
	if controller, ok := t.(minimock.MockController); ok {
		controller.RegisterMocker(m)
	}
	m.SendMessageMock = mMessageSenderMockSendMessage{mock: m}
	return m
}

type MessageSenderMockSendMessageParams struct {
	Text   string
	UserID int64
}

type mMessageSenderMockSendMessage struct {
	mock *MessageSenderMock

	mu       sync.Mutex
	expected *MessageSenderMockSendMessageParams
	err      error
	set      bool
	fn       func(text string, userID int64) error
}

func (mm *mMessageSenderMockSendMessage) Expect(text string, userID int64) *mMessageSenderMockSendMessage {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.expected = &MessageSenderMockSendMessageParams{Text: text, UserID: userID}
	return mm
}

func (mm *mMessageSenderMockSendMessage) Return(err error) *MessageSenderMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.err, mm.set = err, true
	return mm.mock
}

func (mm *mMessageSenderMockSendMessage) Set(fn func(text string, userID int64) error) *MessageSenderMock {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.fn, mm.set = fn, true
	return mm.mock
}

func (m *MessageSenderMock) SendMessage(text string, userID int64) error {
	defer atomic.AddUint64(&m.afterSendMessageCounter, 1)

	mm := &m.SendMessageMock
	mm.mu.Lock()
	expected, err, set, fn := mm.expected, mm.err, mm.set, mm.fn
	mm.mu.Unlock()

	if !set {
		m.t.Errorf("Unexpected call to MessageSenderMock.SendMessage. %q %d", text, userID)
		return nil
	}
	got := MessageSenderMockSendMessageParams{Text: text, UserID: userID}
	if expected != nil && *expected != got {
		m.t.Errorf("MessageSenderMock.SendMessage got unexpected parameters, want: %#v, got: %#v", *expected, got)
	}
	if fn != nil {
		return fn(text, userID)
	}
	return err
}

func (m *MessageSenderMock) SendMessageAfterCounter() uint64 {
	return atomic.LoadUint64(&m.afterSendMessageCounter)
}

func (m *MessageSenderMock) MinimockFinish() {
	m.SendMessageMock.mu.Lock()
	set := m.SendMessageMock.set
	m.SendMessageMock.mu.Unlock()
	if set && m.SendMessageAfterCounter() == 0 {
		m.t.Error("Expected call to MessageSenderMock.SendMessage")
	}
}

func (m *MessageSenderMock) MinimockWait(timeout time.Duration) {
	m.SendMessageMock.mu.Lock()
	set := m.SendMessageMock.set
	m.SendMessageMock.mu.Unlock()
	if !set {
		return
	}

	deadline := time.After(timeout)
	for m.SendMessageAfterCounter() == 0 {
		select {
		case <-deadline:
			m.MinimockFinish()
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
