package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tridentbot/erlc-ingest/internal/lock"
)

func TestMockLocker_ExclusivePerTenant(t *testing.T) {
	l := lock.NewMock()
	ctx := context.Background()

	ok, err := l.AcquirePassLock(ctx, "g1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.AcquirePassLock(ctx, "g1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire for the same tenant must fail")

	// a different tenant is unaffected
	ok, err = l.AcquirePassLock(ctx, "g2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMockLocker_ReleaseAllowsReacquire(t *testing.T) {
	l := lock.NewMock()
	ctx := context.Background()

	ok, err := l.AcquirePassLock(ctx, "g1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.ReleasePassLock(ctx, "g1"))

	ok, err = l.AcquirePassLock(ctx, "g1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
