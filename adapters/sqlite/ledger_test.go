package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/artpar/costledger/adapters/ledgertest"
	"github.com/artpar/costledger/adapters/sqlite"
	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/ports"
)

func setupTestStore(t *testing.T) (*sqlite.LedgerStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger", "usage.db")
	store, err := sqlite.OpenLedgerStore(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, path
}

func TestLedgerStore_Contract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ports.LedgerStore {
		s, _ := setupTestStore(t)
		return s
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "usage.db")

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	require.Equal(t, 1, count)
}

func TestLedgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store, path := setupTestStore(t)

	_, err := store.Append(ctx, ledgertest.Record(t, 0, "m1", 10, 10, 0.001))
	require.NoError(t, err)
	_, err = store.Append(ctx, ledgertest.Record(t, time.Second, "m2", 20, 5, 0.004))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.OpenLedgerStore(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	s := usage.Summarize(got)
	require.Equal(t, int64(2), s.Calls)
	require.Equal(t, int64(45), s.TotalTokens)
	require.InDelta(t, 0.005, s.Cost, 1e-12)
}

func TestLedgerStore_SubMicrosecondStartBound(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)

	r := ledgertest.Record(t, 0, "m", 1, 1, 0.1)
	_, err := store.Append(ctx, r)
	require.NoError(t, err)

	got, err := store.Load(ctx, usage.Filter{Start: r.Timestamp.Add(500 * time.Nanosecond)})
	require.NoError(t, err)
	require.Empty(t, got)
}
