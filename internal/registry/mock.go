package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is an in-memory tenant store for testing
type MockClient struct {
	mu      sync.RWMutex
	tenants map[string]*TenantRecord
}

func NewMock() *MockClient {
	return &MockClient{tenants: make(map[string]*TenantRecord)}
}

func (m *MockClient) GetTenant(_ context.Context, guildID string) (*TenantRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tenants[guildID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockClient) CreateTenant(_ context.Context, record *TenantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[record.GuildID]; ok {
		return &ConditionalCheckFailed{GuildID: record.GuildID}
	}
	cp := *record
	m.tenants[record.GuildID] = &cp
	return nil
}

func (m *MockClient) FindActive(_ context.Context) ([]*TenantRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []*TenantRecord
	for _, r := range m.tenants {
		if r.Active {
			cp := *r
			records = append(records, &cp)
		}
	}
	return records, nil
}

func (m *MockClient) Deactivate(_ context.Context, guildID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tenants[guildID]
	if !ok {
		return fmt.Errorf("tenant %s not found", guildID)
	}
	r.Active = false
	r.DeactivatedAt = time.Now().UTC()
	r.DeactivationReason = reason
	return nil
}

func (m *MockClient) ListAll(_ context.Context) ([]*TenantRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []*TenantRecord
	for _, r := range m.tenants {
		cp := *r
		records = append(records, &cp)
	}
	return records, nil
}

func (m *MockClient) DeleteTenant(_ context.Context, guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, guildID)
	return nil
}

// ConditionalCheckFailed is returned when a conditional write fails
type ConditionalCheckFailed struct {
	GuildID string
}

func (e *ConditionalCheckFailed) Error() string {
	return "tenant already exists: " + e.GuildID
}
