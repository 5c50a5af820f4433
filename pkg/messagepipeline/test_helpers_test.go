package messagepipeline_test

import (
	"context"
	"sync"

	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// MockMessageConsumer is a mock implementation of the MessageConsumer interface.
type MockMessageConsumer struct {
	msgChan    chan types.Envelope
	doneChan   chan struct{}
	stopOnce   sync.Once
	startErr   error
	mu         sync.Mutex
	startCount int
}

// NewMockMessageConsumer creates a new mock consumer with a buffered channel.
func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	return &MockMessageConsumer{
		msgChan:  make(chan types.Envelope, bufferSize),
		doneChan: make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Messages() <-chan types.Envelope { return m.msgChan }

// Start stops the consumer when ctx is cancelled, as a real consumer would.
func (m *MockMessageConsumer) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCount++
	err := m.startErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()
	return nil
}

func (m *MockMessageConsumer) Stop() error {
	m.stopOnce.Do(func() {
		close(m.msgChan)
		close(m.doneChan)
	})
	return nil
}

func (m *MockMessageConsumer) Done() <-chan struct{} { return m.doneChan }

func (m *MockMessageConsumer) Push(env types.Envelope) {
	m.msgChan <- env
}

func (m *MockMessageConsumer) GetStartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCount
}

// recordingHandler keeps every batch and the deadline it was handled with.
type recordingHandler struct {
	mu        sync.Mutex
	batches   [][]types.Envelope
	deadlines []bool
	handled   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{handled: make(chan struct{}, 100)}
}

func (h *recordingHandler) Handle(ctx context.Context, envelopes []types.Envelope) {
	_, hasDeadline := ctx.Deadline()
	h.mu.Lock()
	h.batches = append(h.batches, envelopes)
	h.deadlines = append(h.deadlines, hasDeadline)
	h.mu.Unlock()
	h.handled <- struct{}{}
}

func (h *recordingHandler) Batches() [][]types.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]types.Envelope(nil), h.batches...)
}

// ackCounter builds envelopes that count their settlement.
type ackCounter struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (a *ackCounter) envelope(id string) types.Envelope {
	return types.Envelope{
		ID:   id,
		Body: []byte(`{"deviceId":"` + id + `"}`),
		Ack:  func() { a.mu.Lock(); a.acks++; a.mu.Unlock() },
		Nack: func() { a.mu.Lock(); a.nacks++; a.mu.Unlock() },
	}
}

func (a *ackCounter) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}
