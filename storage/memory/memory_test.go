package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

func TestStorage_GetSetEntitlement(t *testing.T) {
	storage := New()
	ctx := context.Background()

	_, err := storage.GetEntitlement(ctx, "user1")
	assert.ErrorIs(t, err, entitlement.ErrEntitlementNotFound)

	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	ent := &entitlement.Entitlement{
		UserID:           "user1",
		IsPremium:        true,
		CustomerID:       "cus_1",
		SubscriptionID:   "sub_1",
		CurrentPeriodEnd: &end,
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, storage.SetEntitlement(ctx, ent))

	got, err := storage.GetEntitlement(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, ent, got)

	// Mutating the returned copy must not leak into storage
	got.IsPremium = false
	again, err := storage.GetEntitlement(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, again.IsPremium)
}

func TestStorage_SetEntitlement_Invalid(t *testing.T) {
	storage := New()
	assert.ErrorIs(t, storage.SetEntitlement(context.Background(), nil), entitlement.ErrInvalidEntitlement)
	assert.ErrorIs(t, storage.SetEntitlement(context.Background(), &entitlement.Entitlement{}),
		entitlement.ErrInvalidEntitlement)
}

func TestStorage_SetEntitlement_KeepsCustomerID(t *testing.T) {
	storage := New()
	ctx := context.Background()

	require.NoError(t, storage.SetEntitlement(ctx, &entitlement.Entitlement{UserID: "u1", CustomerID: "cus_first"}))
	require.NoError(t, storage.SetEntitlement(ctx, &entitlement.Entitlement{UserID: "u1", CustomerID: "cus_second"}))

	got, err := storage.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cus_first", got.CustomerID)
}

func TestStorage_CreateEntitlement_DoesNotOverwrite(t *testing.T) {
	storage := New()
	ctx := context.Background()

	require.NoError(t, storage.SetEntitlement(ctx, &entitlement.Entitlement{UserID: "u1", IsPremium: true}))
	require.NoError(t, storage.CreateEntitlement(ctx, entitlement.Default("u1", time.Now())))

	got, err := storage.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsPremium)
}

func TestStorage_SetCustomerID(t *testing.T) {
	storage := New()
	ctx := context.Background()

	stored, err := storage.SetCustomerID(ctx, "u1", "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", stored)

	ent, err := storage.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ent.IsPremium)
	assert.Equal(t, "cus_1", ent.CustomerID)

	stored, err = storage.SetCustomerID(ctx, "u1", "cus_2")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", stored)
}

func TestStorage_FindUserBySubscription(t *testing.T) {
	storage := New()
	ctx := context.Background()

	_, err := storage.FindUserBySubscription(ctx, "sub_1")
	assert.ErrorIs(t, err, entitlement.ErrEntitlementNotFound)

	require.NoError(t, storage.SetEntitlement(ctx, &entitlement.Entitlement{UserID: "u1", SubscriptionID: "sub_1"}))

	userID, err := storage.FindUserBySubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = storage.FindUserBySubscription(ctx, "")
	assert.ErrorIs(t, err, entitlement.ErrEntitlementNotFound)
}

func TestStorage_EventLog(t *testing.T) {
	storage := New()
	ctx := context.Background()

	seen, err := storage.HasProcessedEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, storage.RecordProcessedEvent(ctx, "evt_1"))
	assert.ErrorIs(t, storage.RecordProcessedEvent(ctx, "evt_1"), entitlement.ErrEventAlreadyRecorded)

	seen, err = storage.HasProcessedEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, storage.EventCount())

	assert.ErrorIs(t, storage.RecordProcessedEvent(ctx, ""), entitlement.ErrInvalidEventID)
}

func TestStorage_EventLog_ConcurrentDeliveries(t *testing.T) {
	storage := New()
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := storage.RecordProcessedEvent(ctx, "evt_race"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}
