package entitlement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
	"github.com/mihaimyh/fit4seniors/storage/memory"
)

func TestManager_ResolveUser_MetadataFastPath(t *testing.T) {
	storage := &flakyStorage{Storage: memory.New(), failFind: true}
	manager, err := entitlement.NewManager(storage, entitlement.Config{})
	require.NoError(t, err)

	userID, err := manager.ResolveUser(context.Background(), entitlement.SubscriptionRef{
		ID:       "sub_1",
		Metadata: map[string]string{"user_id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestManager_ResolveUser_StoredLink(t *testing.T) {
	manager, storage := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, storage.SetEntitlement(ctx, &entitlement.Entitlement{UserID: "u1", SubscriptionID: "sub_1"}))

	userID, err := manager.ResolveUser(ctx, entitlement.SubscriptionRef{ID: "sub_1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestManager_ResolveUser_Unresolved(t *testing.T) {
	manager, _ := newTestManager(t)

	userID, err := manager.ResolveUser(context.Background(), entitlement.SubscriptionRef{ID: "sub_unknown"})
	require.NoError(t, err)
	assert.Empty(t, userID)

	userID, err = manager.ResolveUser(context.Background(), entitlement.SubscriptionRef{})
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestManager_ResolveUser_StorageError(t *testing.T) {
	storage := &flakyStorage{Storage: memory.New(), failFind: true}
	manager, err := entitlement.NewManager(storage, entitlement.Config{})
	require.NoError(t, err)

	_, err = manager.ResolveUser(context.Background(), entitlement.SubscriptionRef{ID: "sub_1"})
	assert.ErrorIs(t, err, errBoom)
}
