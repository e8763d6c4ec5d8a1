package snapshot

import (
	"context"
	"sync"
)

// MemorySink is an in-memory Sink for testing.
type MemorySink struct {
	mu     sync.Mutex
	tables map[string][]Row
	// failures to inject on upcoming Insert calls, consumed in order
	pendingErrs []error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string][]Row)}
}

// FailNext queues errs to be returned by the next Insert calls.
func (m *MemorySink) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingErrs = append(m.pendingErrs, errs...)
}

func (m *MemorySink) Insert(_ context.Context, table string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pendingErrs) > 0 {
		err := m.pendingErrs[0]
		m.pendingErrs = m.pendingErrs[1:]
		return err
	}
	m.tables[table] = append(m.tables[table], rows...)
	return nil
}

// Rows returns a copy of everything inserted into table.
func (m *MemorySink) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[table]
	cp := make([]Row, len(rows))
	copy(cp, rows)
	return cp
}
