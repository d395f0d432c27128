package registration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(30 * time.Minute)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, 1, &Session{Step: StepFullName, Data: map[string]string{}}))

	s, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepFullName, s.Step)

	// Past the TTL the session is invisible.
	now = now.Add(31 * time.Minute)
	_, err = store.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMemoryStorePutRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(30 * time.Minute)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, 1, &Session{Step: StepFullName, Data: map[string]string{}}))

	// Activity 20 minutes in pushes the deadline forward.
	now = now.Add(20 * time.Minute)
	require.NoError(t, store.Put(ctx, 1, &Session{Step: StepCompany, Data: map[string]string{}}))

	now = now.Add(20 * time.Minute)
	s, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepCompany, s.Step)
}

func TestMemoryStorePurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10 * time.Minute)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, 1, &Session{Step: StepFullName, Data: map[string]string{}}))
	require.NoError(t, store.Put(ctx, 2, &Session{Step: StepFullName, Data: map[string]string{}}))

	now = now.Add(5 * time.Minute)
	require.NoError(t, store.Put(ctx, 3, &Session{Step: StepRole, Data: map[string]string{}}))

	now = now.Add(6 * time.Minute)
	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	_, err = store.Get(ctx, 3)
	assert.NoError(t, err)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	require.NoError(t, store.Delete(ctx, 1))
	require.NoError(t, store.Put(ctx, 1, &Session{Step: StepFullName, Data: map[string]string{}}))
	require.NoError(t, store.Delete(ctx, 1))
	require.NoError(t, store.Delete(ctx, 1))

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	original := &Session{Step: StepCompany, Data: map[string]string{"full_name": "Иван"}}
	require.NoError(t, store.Put(ctx, 1, original))
	original.Data["full_name"] = "mutated"

	s, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Иван", s.Data["full_name"])

	// Mutating the returned session must not leak back into the store.
	s.Data["company"] = "Acme"
	again, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, again.Data, "company")
}
