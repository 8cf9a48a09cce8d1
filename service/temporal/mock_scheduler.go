package temporal

import (
	"context"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu          sync.RWMutex
	ensured     bool
	interval    time.Duration
	deleted     bool
	ensureError error
	deleteError error
}

// NewMockScheduler creates a new mock scheduler for testing.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// EnsureReconcileSchedule records the call and returns any configured error.
func (m *MockScheduler) EnsureReconcileSchedule(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensureError != nil {
		return m.ensureError
	}
	m.ensured = true
	m.interval = interval
	return nil
}

// DeleteReconcileSchedule records the call and returns any configured error.
func (m *MockScheduler) DeleteReconcileSchedule(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteError != nil {
		return m.deleteError
	}
	m.deleted = true
	return nil
}

// Ensured reports whether the schedule was ensured and with what interval.
func (m *MockScheduler) Ensured() (bool, time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ensured, m.interval
}

// Deleted reports whether the schedule was deleted.
func (m *MockScheduler) Deleted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleted
}

// SetEnsureError configures the error returned by EnsureReconcileSchedule.
func (m *MockScheduler) SetEnsureError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureError = err
}
