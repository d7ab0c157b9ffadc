package activity

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MockStore is an in-memory timeline store for tests.
type MockStore struct {
	mu        sync.Mutex
	Timelines map[int64][]Entry
}

func NewMock() *MockStore {
	return &MockStore{Timelines: make(map[int64][]Entry)}
}

func (m *MockStore) Append(_ context.Context, userID int64, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tl := m.Timelines[userID]
	for i, existing := range tl {
		if e.EventID != "" && existing.EventID == e.EventID && existing.Created.Equal(e.Created) {
			tl[i] = e
			return nil
		}
	}
	tl = append(tl, e)
	sort.SliceStable(tl, func(i, j int) bool { return tl[i].Created.After(tl[j].Created) })
	m.Timelines[userID] = tl
	return nil
}

func (m *MockStore) Recent(_ context.Context, userID int64, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tl := m.Timelines[userID]
	if limit > 0 && len(tl) > limit {
		tl = tl[:limit]
	}
	return append([]Entry(nil), tl...), nil
}

func (m *MockStore) Close() {}

// MockStoreFail fails every operation.
type MockStoreFail struct{}

func (m *MockStoreFail) Append(context.Context, int64, Entry) error {
	return errors.New("mock activity append failed")
}

func (m *MockStoreFail) Recent(context.Context, int64, int) ([]Entry, error) {
	return nil, errors.New("mock activity read failed")
}

func (m *MockStoreFail) Close() {}
