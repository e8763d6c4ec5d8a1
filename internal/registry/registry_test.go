package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tridentbot/erlc-ingest/internal/registry"
)

func newRecord(id string) *registry.TenantRecord {
	return &registry.TenantRecord{
		GuildID:   id,
		ServerKey: "key-" + id,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func TestMock_CreateAndGet(t *testing.T) {
	m := registry.NewMock()
	ctx := context.Background()

	require.NoError(t, m.CreateTenant(ctx, newRecord("guild-a")))

	got, err := m.GetTenant(ctx, "guild-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "guild-a", got.GuildID)
	assert.Equal(t, "key-guild-a", got.ServerKey)
	assert.True(t, got.Active)
}

func TestMock_CreateDuplicate(t *testing.T) {
	m := registry.NewMock()
	ctx := context.Background()

	require.NoError(t, m.CreateTenant(ctx, newRecord("dup")))
	err := m.CreateTenant(ctx, newRecord("dup"))
	assert.Error(t, err, "second create should fail")
}

func TestMock_GetNonExistent(t *testing.T) {
	m := registry.NewMock()
	got, err := m.GetTenant(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMock_FindActiveExcludesDeactivated(t *testing.T) {
	m := registry.NewMock()
	ctx := context.Background()

	require.NoError(t, m.CreateTenant(ctx, newRecord("live")))
	require.NoError(t, m.CreateTenant(ctx, newRecord("dead")))
	require.NoError(t, m.Deactivate(ctx, "dead", "auth failure"))

	active, err := m.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].GuildID)
}

func TestMock_DeactivateRecordsReason(t *testing.T) {
	m := registry.NewMock()
	ctx := context.Background()

	require.NoError(t, m.CreateTenant(ctx, newRecord("guild-b")))
	require.NoError(t, m.Deactivate(ctx, "guild-b", "401 invalid server key"))

	got, err := m.GetTenant(ctx, "guild-b")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "401 invalid server key", got.DeactivationReason)
	assert.False(t, got.DeactivatedAt.IsZero())
}

func TestMock_DeactivateUnknownTenant(t *testing.T) {
	m := registry.NewMock()
	assert.Error(t, m.Deactivate(context.Background(), "ghost", "whatever"))
}

func TestMock_DeleteTenant(t *testing.T) {
	m := registry.NewMock()
	ctx := context.Background()

	require.NoError(t, m.CreateTenant(ctx, newRecord("to-delete")))
	require.NoError(t, m.DeleteTenant(ctx, "to-delete"))

	got, err := m.GetTenant(ctx, "to-delete")
	require.NoError(t, err)
	assert.Nil(t, got)
}
