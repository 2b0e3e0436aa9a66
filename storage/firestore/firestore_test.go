package firestore

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

const (
	testProjectID = "test-project"
	emulatorHost  = "localhost:8080"
)

// setupTestStorage creates a storage against the Firestore emulator using
// unique collection names for each test.
func setupTestStorage(t *testing.T) (*Storage, *firestore.Client) {
	t.Helper()

	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		host = emulatorHost
		t.Setenv("FIRESTORE_EMULATOR_HOST", host)
	}
	conn, err := net.DialTimeout("tcp", host, time.Second)
	if err != nil {
		t.Skipf("Firestore emulator not available: %v", err)
	}
	_ = conn.Close()

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, testProjectID)
	require.NoError(t, err)

	stamp := time.Now().UnixNano()
	config := Config{
		EntitlementsCollection: fmt.Sprintf("test_ent_%s_%d", t.Name(), stamp),
		EventsCollection:       fmt.Sprintf("test_events_%s_%d", t.Name(), stamp),
	}
	storage, err := New(client, config)
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupFirestore(client, config.EntitlementsCollection, config.EventsCollection)
		_ = client.Close()
	})
	return storage, client
}

func cleanupFirestore(client *firestore.Client, collections ...string) {
	ctx := context.Background()
	for _, coll := range collections {
		docs, err := client.Collection(coll).Documents(ctx).GetAll()
		if err != nil {
			continue
		}
		bw := client.BulkWriter(ctx)
		for _, doc := range docs {
			_, _ = bw.Delete(doc.Ref)
		}
		bw.End()
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestDataConversion(t *testing.T) {
	end := time.Date(2026, 11, 19, 0, 0, 0, 0, time.UTC)
	ent := &entitlement.Entitlement{
		UserID:           "u1",
		IsPremium:        true,
		CustomerID:       "cus_1",
		SubscriptionID:   "sub_1",
		CurrentPeriodEnd: &end,
		UpdatedAt:        time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}

	got := fromData("u1", toData(ent))
	assert.Equal(t, ent, got)

	empty := fromData("u2", map[string]interface{}{fieldCurrentPeriodEnd: nil})
	assert.False(t, empty.IsPremium)
	assert.Nil(t, empty.CurrentPeriodEnd)
}

func TestStorage_EntitlementLifecycle(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := storage.GetEntitlement(ctx, "u1")
	assert.ErrorIs(t, err, entitlement.ErrEntitlementNotFound)

	require.NoError(t, storage.CreateEntitlement(ctx, entitlement.Default("u1", now)))

	end := now.Add(30 * 24 * time.Hour)
	premium := &entitlement.Entitlement{
		UserID:           "u1",
		IsPremium:        true,
		SubscriptionID:   "sub_1",
		CurrentPeriodEnd: &end,
		UpdatedAt:        now,
	}
	require.NoError(t, storage.SetEntitlement(ctx, premium))

	// Create never overwrites an existing record
	require.NoError(t, storage.CreateEntitlement(ctx, entitlement.Default("u1", now)))

	got, err := storage.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsPremium)
	assert.Equal(t, "sub_1", got.SubscriptionID)
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.True(t, end.Equal(*got.CurrentPeriodEnd))

	userID, err := storage.FindUserBySubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = storage.FindUserBySubscription(ctx, "sub_missing")
	assert.ErrorIs(t, err, entitlement.ErrEntitlementNotFound)
}

func TestStorage_CustomerIDIsKept(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()

	stored, err := storage.SetCustomerID(ctx, "u1", "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", stored)

	stored, err = storage.SetCustomerID(ctx, "u1", "cus_2")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", stored)

	require.NoError(t, storage.SetEntitlement(ctx, &entitlement.Entitlement{
		UserID:     "u1",
		IsPremium:  true,
		CustomerID: "cus_3",
	}))

	got, err := storage.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", got.CustomerID)
	assert.True(t, got.IsPremium)
}

func TestStorage_EventLog(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()

	seen, err := storage.HasProcessedEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, storage.RecordProcessedEvent(ctx, "evt_1"))
	assert.ErrorIs(t, storage.RecordProcessedEvent(ctx, "evt_1"), entitlement.ErrEventAlreadyRecorded)

	seen, err = storage.HasProcessedEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, storage.Ping(ctx))
}

func TestStorage_ConcurrentRecordProcessedEvent(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- storage.RecordProcessedEvent(ctx, "evt_race")
		}()
	}
	wg.Wait()
	close(results)

	var recorded, duplicates int
	for err := range results {
		switch {
		case err == nil:
			recorded++
		case assert.ErrorIs(t, err, entitlement.ErrEventAlreadyRecorded):
			duplicates++
		}
	}
	assert.Equal(t, 1, recorded)
	assert.Equal(t, workers-1, duplicates)
}
