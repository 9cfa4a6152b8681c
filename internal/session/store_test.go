package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oblisync/oblisync/internal/marketplace"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewStore(client, "test-secret", time.Hour), mr
}

func TestConfigRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	missing, err := store.Config(ctx)
	require.NoError(t, err)
	require.Nil(t, missing)

	cfg := IntegrationConfig{
		MarketplaceBaseURL:   "https://api.marketplace.example",
		MarketplaceAPIKey:    "key",
		MarketplaceAPISecret: "secret",
		SupplierID:           42,
		AccountingBaseURL:    "https://api.accounting.example",
		AccountingEmail:      "user@example.com",
		AccountingSecretKey:  "sk",
		SellerCIF:            "RO12345678",
		SeriesName:           "FCT",
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	require.NoError(t, store.SaveConfig(ctx, cfg))

	// Credentials never hit Redis in the clear.
	stored, err := mr.Get("oblisync:config")
	require.NoError(t, err)
	require.NotContains(t, stored, "secret")

	loaded, err := store.Config(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, cfg, *loaded)
}

func TestConfigWrongSecret(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	cfg := IntegrationConfig{MarketplaceAPIKey: "key"}
	require.NoError(t, store.SaveConfig(ctx, cfg))

	other := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "other-secret", time.Hour)
	_, err := other.Config(ctx)
	require.ErrorIs(t, err, errDecrypt)
}

func TestPackagesRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	packages, err := store.Packages(ctx)
	require.NoError(t, err)
	require.Nil(t, packages)

	working := []marketplace.ShipmentPackage{
		{ID: 1, OrderNumber: "A", Status: "Shipped"},
		{ID: 2, OrderNumber: "B", Status: marketplace.StatusAwaiting},
	}
	require.NoError(t, store.ReplacePackages(ctx, working))

	loaded, err := store.Packages(ctx)
	require.NoError(t, err)
	require.Equal(t, working, loaded)
}

func TestRecordLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	record, err := store.Record(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, record)

	require.ErrorIs(t, store.UpdateRecord(ctx, 7, func(*ProcessedInvoiceRecord) {}), ErrRecordNotFound)

	initial := ProcessedInvoiceRecord{
		PackageID:   7,
		OrderNumber: "ORD-7",
		Status:      StatusPending,
		ProcessedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveRecord(ctx, initial))

	require.NoError(t, store.UpdateRecord(ctx, 7, func(r *ProcessedInvoiceRecord) {
		r.Status = StatusFailed
		r.ErrorMessage = "network connection failed"
	}))

	updated, err := store.Record(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, updated.Status)
	require.Equal(t, "ORD-7", updated.OrderNumber)

	records, err := store.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Contains(t, records, int64(7))
}

func TestLogEviction(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < logCap+10; i++ {
		require.NoError(t, store.AppendLog(ctx, LogEntry{
			ID:        fmt.Sprintf("entry-%d", i),
			Timestamp: time.Now(),
			Severity:  SeverityInfo,
			Message:   fmt.Sprintf("message %d", i),
		}))
	}

	entries, err := store.Logs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, logCap)
	// Newest first; the oldest ten were evicted.
	require.Equal(t, fmt.Sprintf("entry-%d", logCap+9), entries[0].ID)
	require.Equal(t, "entry-10", entries[len(entries)-1].ID)
}

func TestLogsLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendLog(ctx, LogEntry{ID: fmt.Sprintf("e%d", i), Severity: SeverityInfo}))
	}
	entries, err := store.Logs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSelectedRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSelected(ctx, []int64{3, 1, 2}))
	ids, err := store.Selected(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 1, 2}, ids)
}

func TestClearKeepsConfig(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveConfig(ctx, IntegrationConfig{MarketplaceAPIKey: "key"}))
	require.NoError(t, store.ReplacePackages(ctx, []marketplace.ShipmentPackage{{ID: 1}}))
	require.NoError(t, store.SaveRecord(ctx, ProcessedInvoiceRecord{PackageID: 1, Status: StatusCompleted}))
	require.NoError(t, store.AppendLog(ctx, LogEntry{ID: "e", Severity: SeverityInfo}))

	require.NoError(t, store.Clear(ctx))

	packages, err := store.Packages(ctx)
	require.NoError(t, err)
	require.Nil(t, packages)

	records, err := store.Records(ctx)
	require.NoError(t, err)
	require.Empty(t, records)

	cfg, err := store.Config(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "key", cfg.MarketplaceAPIKey)
}

func TestConfigValidate(t *testing.T) {
	cfg := IntegrationConfig{}
	cfg.ApplyDefaults()
	require.Error(t, cfg.Validate())

	cfg = IntegrationConfig{
		MarketplaceBaseURL:   "https://api.marketplace.example",
		MarketplaceAPIKey:    "key",
		MarketplaceAPISecret: "secret",
		SupplierID:           42,
		AccountingBaseURL:    "https://api.accounting.example",
		AccountingEmail:      "user@example.com",
		AccountingSecretKey:  "sk",
		SellerCIF:            "RO12345678",
		SeriesName:           "FCT",
		Language:             "not a language",
	}
	cfg.ApplyDefaults()
	require.Error(t, cfg.Validate())

	cfg.Language = "RO"
	require.NoError(t, cfg.Validate())
}
