// Package ledgertest holds the behaviour every ports.LedgerStore must show.
// Store packages run it from their own tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/ports"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) ports.LedgerStore

// Base is the reference instant used by generated records.
var Base = time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

// Record builds a valid record at Base plus offset.
func Record(t *testing.T, offset time.Duration, model string, prompt, completion int64, cost float64) usage.Record {
	t.Helper()
	r, err := usage.NewRecord(Base.Add(offset), model, prompt, completion, cost, "", nil)
	require.NoError(t, err)
	return r
}

// Run executes the shared store contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("EmptyLoad", func(t *testing.T) { testEmptyLoad(t, newStore(t)) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("Filter", func(t *testing.T) { testFilter(t, newStore(t)) })
	t.Run("InvalidFilter", func(t *testing.T) { testInvalidFilter(t, newStore(t)) })
	t.Run("RejectsInvalidRecord", func(t *testing.T) { testRejectsInvalid(t, newStore(t)) })
	t.Run("Replace", func(t *testing.T) { testReplace(t, newStore(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
}

func testEmptyLoad(t *testing.T, s ports.LedgerStore) {
	got, err := s.Load(context.Background(), usage.Filter{})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func testRoundTrip(t *testing.T, s ports.LedgerStore) {
	ctx := context.Background()

	md, err := usage.NewMetadata(map[string]any{"session": "s-1", "attempt": 2})
	require.NoError(t, err)

	want := []usage.Record{
		Record(t, 0, "m2", 20, 5, 0.004),
		Record(t, -time.Hour, "m1", 10, 10, 0.001), // out of time order on purpose
		Record(t, time.Minute, "m1", 0, 0, 0),
	}
	want[0].ID = "gen-1"
	want[0].Metadata = md

	for _, r := range want {
		stored, err := s.Append(ctx, r)
		require.NoError(t, err)
		require.Equal(t, r.Timestamp, stored.Timestamp)
	}

	got, err := s.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Len(t, got, len(want))

	for i := range want {
		require.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "record %d timestamp", i)
		require.Equal(t, want[i].Model, got[i].Model, "record %d model", i)
		require.Equal(t, want[i].PromptTokens, got[i].PromptTokens)
		require.Equal(t, want[i].CompletionTokens, got[i].CompletionTokens)
		require.Equal(t, want[i].Cost, got[i].Cost)
		require.Equal(t, want[i].ID, got[i].ID)
	}

	var session string
	ok, err := got[0].Metadata.Decode("session", &session)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s-1", session)
	require.Nil(t, got[1].Metadata)
}

func testFilter(t *testing.T, s ports.LedgerStore) {
	ctx := context.Background()
	for i, model := range []string{"a", "b", "a", "b", "a"} {
		_, err := s.Append(ctx, Record(t, time.Duration(i)*time.Hour, model, 1, 1, 0.01))
		require.NoError(t, err)
	}

	got, err := s.Load(ctx, usage.Filter{Model: "a"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Bounds are inclusive at both ends.
	got, err = s.Load(ctx, usage.Filter{Start: Base.Add(time.Hour), End: Base.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got[0].Timestamp.Equal(Base.Add(time.Hour)))
	require.True(t, got[2].Timestamp.Equal(Base.Add(3*time.Hour)))

	got, err = s.Load(ctx, usage.Filter{Model: "b", Start: Base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func testInvalidFilter(t *testing.T, s ports.LedgerStore) {
	_, err := s.Load(context.Background(), usage.Filter{Start: Base, End: Base.Add(-time.Second)})
	require.ErrorIs(t, err, usage.ErrInvalidFilter)
}

func testRejectsInvalid(t *testing.T, s ports.LedgerStore) {
	ctx := context.Background()

	_, err := s.Append(ctx, usage.Record{Timestamp: Base, Model: "", Cost: 1})
	require.ErrorIs(t, err, usage.ErrInvalidRecord)

	got, err := s.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func testReplace(t *testing.T, s ports.LedgerStore) {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.Append(ctx, Record(t, time.Duration(i)*24*time.Hour, "m", 1, 1, 0.5))
		require.NoError(t, err)
	}

	all, err := s.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.NoError(t, s.Replace(ctx, all[2:]))

	got, err := s.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].Timestamp.Equal(all[2].Timestamp))

	// Appends after a replace land after the kept records.
	_, err = s.Append(ctx, Record(t, 10*24*time.Hour, "late", 1, 1, 0.5))
	require.NoError(t, err)
	got, err = s.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "late", got[2].Model)

	require.NoError(t, s.Replace(ctx, nil))
	got, err = s.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func testConcurrentAppend(t *testing.T, s ports.LedgerStore) {
	ctx := context.Background()
	const n = 40

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := usage.NewRecord(Base.Add(time.Duration(i)*time.Second), fmt.Sprintf("m%d", i%3), 1, 1, 0.25, "", nil)
			if err != nil {
				errs <- err
				return
			}
			if _, err := s.Append(ctx, r); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Load(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Len(t, got, n)
	require.Equal(t, 10.0, usage.Summarize(got).Cost)
}

func testClosed(t *testing.T, s ports.LedgerStore) {
	require.NoError(t, s.Close())
	_, err := s.Append(context.Background(), Record(t, 0, "m", 1, 1, 0))
	require.ErrorIs(t, err, ports.ErrStoreClosed)
}
