package services

import (
	"context"
	"sync"
)

// MockMailer records messages instead of sending them
type MockMailer struct {
	sent []Message
	err  error
	mu   sync.RWMutex
}

// NewMockMailer creates a new mock mailer
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// SetAsMockForTesting sets this mock as the global mailer
func (m *MockMailer) SetAsMockForTesting() {
	SetMailer(m)
}

// FailWith makes every following Send return err after recording the message
func (m *MockMailer) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Send records msg
func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

// Sent returns a copy of all recorded messages
func (m *MockMailer) Sent() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
