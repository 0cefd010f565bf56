package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/document"
	"github.com/trezcool/classdrive/storage/objectstore/memstore"
	"github.com/trezcool/classdrive/testutil"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Manager, *document.Store, *testutil.FaultyStore) {
	objects := testutil.NewFaultyStore(memstore.New())
	store := testutil.NewDocumentStore(t, objects, &testutil.Logger{})
	NowFunc = func() time.Time { return t0 }
	t.Cleanup(func() { NowFunc = time.Now })
	return NewManager(store, &testutil.Logger{}, 12*time.Hour, 10*time.Hour), store, objects
}

func sessionsOf(t *testing.T, store *document.Store, username string) []document.Session {
	var found []document.Session
	for _, sess := range testutil.Snapshot(t, store).Sessions {
		if sess.Username == username {
			found = append(found, sess)
		}
	}
	return found
}

func TestNewManager_DefaultRefresh(t *testing.T) {
	m := NewManager(nil, nil, 12*time.Hour, 0)
	assert.Equal(t, 10*time.Hour, m.refreshBelow)
}

func TestManager_Create(t *testing.T) {
	ctx := context.Background()
	m, store, _ := setup(t)

	tok1, err := m.Create(ctx, "amy", core.RoleStudent, "Amy Pond")
	require.NoError(t, err)
	tok2, err := m.Create(ctx, "amy", core.RoleStudent, "Amy Pond")
	require.NoError(t, err)
	_, err = m.Create(ctx, "rory", core.RoleStudent, "Rory Williams")
	require.NoError(t, err)

	assert.NotEqual(t, tok1, tok2)
	sessions := sessionsOf(t, store, "amy")
	require.Len(t, sessions, 1)
	assert.Equal(t, t0.Add(12*time.Hour), sessions[0].Expiry)

	_, err = m.Validate(ctx, tok1)
	assert.Equal(t, core.ErrNotFound, err)
	sess, err := m.Validate(ctx, tok2)
	require.NoError(t, err)
	assert.Equal(t, "Amy Pond", sess.FullName)
	assert.Len(t, sessionsOf(t, store, "rory"), 1)
}

func TestManager_CreatePurgesExpired(t *testing.T) {
	ctx := context.Background()
	m, store, _ := setup(t)

	_, err := m.Create(ctx, "amy", core.RoleStudent, "Amy Pond")
	require.NoError(t, err)

	NowFunc = func() time.Time { return t0.Add(13 * time.Hour) }
	_, err = m.Create(ctx, "rory", core.RoleStudent, "Rory Williams")
	require.NoError(t, err)
	assert.Empty(t, sessionsOf(t, store, "amy"))
}

func TestManager_Validate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		elapsed    time.Duration
		wantErr    error
		wantExpiry time.Duration // relative to t0
	}{
		{name: "fresh session is unchanged", elapsed: time.Hour, wantExpiry: 12 * time.Hour},
		{name: "exactly at threshold is unchanged", elapsed: 2 * time.Hour, wantExpiry: 12 * time.Hour},
		{name: "below threshold slides", elapsed: 3 * time.Hour, wantExpiry: 15 * time.Hour},
		{name: "near expiry slides", elapsed: 11*time.Hour + 59*time.Minute, wantExpiry: 23*time.Hour + 59*time.Minute},
		{name: "expired", elapsed: 12 * time.Hour, wantErr: core.ErrNotFound},
		{name: "long expired", elapsed: 48 * time.Hour, wantErr: core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, _ := setup(t)
			token, err := m.Create(ctx, "amy", core.RoleStudent, "Amy Pond")
			require.NoError(t, err)

			NowFunc = func() time.Time { return t0.Add(tt.elapsed) }
			sess, err := m.Validate(ctx, token)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				assert.NotContains(t, testutil.Snapshot(t, store).Sessions, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, t0.Add(tt.wantExpiry), sess.Expiry)
			assert.Equal(t, t0.Add(tt.wantExpiry), testutil.Snapshot(t, store).Sessions[token].Expiry)
		})
	}
}

func TestManager_ValidateUnknown(t *testing.T) {
	m, _, _ := setup(t)
	for _, token := range []string{"", "nope"} {
		_, err := m.Validate(context.Background(), token)
		assert.Equal(t, core.ErrNotFound, err)
	}
}

func TestManager_ValidateSaveFailure(t *testing.T) {
	ctx := context.Background()
	m, store, objects := setup(t)
	token, err := m.Create(ctx, "amy", core.RoleStudent, "Amy Pond")
	require.NoError(t, err)
	objects.Fail(testutil.OpUpdate)

	// extension fails: session still valid, expiry untouched
	NowFunc = func() time.Time { return t0.Add(5 * time.Hour) }
	sess, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(12*time.Hour), sess.Expiry)

	// purge fails: session still reported absent
	NowFunc = func() time.Time { return t0.Add(13 * time.Hour) }
	_, err = m.Validate(ctx, token)
	assert.Equal(t, core.ErrNotFound, err)
	assert.Contains(t, testutil.Snapshot(t, store).Sessions, token)
}

func TestManager_Destroy(t *testing.T) {
	ctx := context.Background()
	m, store, objects := setup(t)
	token, err := m.Create(ctx, "amy", core.RoleStudent, "Amy Pond")
	require.NoError(t, err)

	require.NoError(t, m.Destroy(ctx, token))
	assert.Empty(t, testutil.Snapshot(t, store).Sessions)
	require.NoError(t, m.Destroy(ctx, token), "destroying twice is fine")

	objects.Fail(testutil.OpUpdate)
	err = m.Destroy(ctx, "whatever")
	assert.True(t, errors.Is(err, core.ErrRemoteUnavailable))
}
