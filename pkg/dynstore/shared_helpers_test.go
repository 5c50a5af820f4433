package dynstore_test

import (
	"context"
	"sync"
)

type testPayload struct {
	ID int
}

// MockDataBatchInserter records every batch it receives. InsertBatchFn, when
// set, decides the outcome of each call.
type MockDataBatchInserter[T any] struct {
	mu            sync.Mutex
	receivedItems [][]*T
	callCount     int
	InsertBatchFn func(ctx context.Context, items []*T) error
}

func (m *MockDataBatchInserter[T]) InsertBatch(ctx context.Context, items []*T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.receivedItems = append(m.receivedItems, items)
	if m.InsertBatchFn != nil {
		return m.InsertBatchFn(ctx, items)
	}
	return nil
}

func (m *MockDataBatchInserter[T]) Close() error { return nil }

func (m *MockDataBatchInserter[T]) GetReceivedItems() [][]*T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receivedItems
}

func (m *MockDataBatchInserter[T]) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
