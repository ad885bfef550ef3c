package blacklist_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/memstore"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m := blacklist.NewMatcher([]string{"InvalidSyn", "dental floss", "Medtronic", "  ", "invalidsyn"})
	assert.Equal(t, 3, m.Len())

	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"exact", "Kit InvalidSyn 200", "InvalidSyn", true},
		{"case folded", "INVALIDSYN reagent", "InvalidSyn", true},
		{"accent folded", "Medtrónic pump", "Medtronic", true},
		{"phrase", "premium Dental Floss mint", "dental floss", true},
		{"no match", "cardiac stent", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := m.Match(tt.text)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_FirstConfiguredKeywordWins(t *testing.T) {
	t.Parallel()

	m := blacklist.NewMatcher([]string{"floss", "toothbrush"})
	got, ok := m.Match("toothbrush and floss")
	require.True(t, ok)
	assert.Equal(t, "floss", got)
}

func TestMatcher_EmptyAndNil(t *testing.T) {
	t.Parallel()

	_, ok := blacklist.NewMatcher(nil).Match("anything")
	assert.False(t, ok)

	var m *blacklist.Matcher
	_, ok = m.Match("anything")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMatcher_ConcurrentUse(t *testing.T) {
	t.Parallel()

	m := blacklist.NewMatcher([]string{"alpha", "beta"})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text := fmt.Sprintf("record %d beta", i)
			got, ok := m.Match(text)
			assert.True(t, ok)
			assert.Equal(t, "beta", got)
		}()
	}
	wg.Wait()
}

func TestService_AddSwapsMatcher(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := blacklist.NewService(memstore.NewKeywordStore("Acme"), logger.NewNop())
	require.NoError(t, svc.Reload(ctx))

	before := svc.Snapshot()
	_, ok := before.Match("Globex scanner")
	assert.False(t, ok)

	added, err := svc.Add(ctx, "Globex", " acme ", "")
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	// A snapshot taken earlier keeps the old set.
	_, ok = before.Match("Globex scanner")
	assert.False(t, ok)
	got, ok := svc.Snapshot().Match("Globex scanner")
	require.True(t, ok)
	assert.Equal(t, "Globex", got)

	removed, err := svc.Remove(ctx, "ACME")
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok = svc.Snapshot().Match("acme widget")
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := blacklist.NewRedisStore(client, "")
	ctx := context.Background()

	added, err := store.Add(ctx, "Zeta", "alpha", "ALPHA", "Álpha", " ")
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	words, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "Zeta"}, words)

	removed, err := store.Remove(ctx, "zeta")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.Remove(ctx, "zeta")
	require.NoError(t, err)
	assert.False(t, removed)

	svc := blacklist.NewService(store, nil)
	require.NoError(t, svc.Reload(ctx))
	got, ok := svc.Snapshot().Match("ALPHA device")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)
}
