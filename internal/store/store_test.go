package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarx/gh-store/internal/gatewaytest"
	"github.com/dmarx/gh-store/internal/ghcomment"
	"github.com/dmarx/gh-store/internal/storeerrors"
)

func newTestStore(t *testing.T) (*Store, *gatewaytest.Fake) {
	t.Helper()
	gw := gatewaytest.New("author")
	s := New(gw, DefaultConfig(), nil, nil)
	return s, gw
}

func TestCreateThenGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "widget-1", json.RawMessage(`{"count": 1}`))
	require.NoError(t, err)

	obj, err := s.Get(ctx, "widget-1")
	require.NoError(t, err)
	assert.Equal(t, "widget-1", obj.Meta.ObjectID)
	assert.JSONEq(t, `{"count": 1}`, string(obj.Data))
}

func TestUpdateThenGetReturnsLastPersistedState(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "widget-2", json.RawMessage(`{"count": 1}`))
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "widget-2", json.RawMessage(`{"count": 2}`), ghcomment.ModeAppend))

	// Not immediately consistent: the update is still unapplied, so Get
	// returns the last persisted body rather than erroring or blocking.
	obj, err := s.Get(ctx, "widget-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 1}`, string(obj.Data))

	obj, err = s.ProcessUpdates(ctx, "widget-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 2}`, string(obj.Data))

	obj, err = s.Get(ctx, "widget-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 2}`, string(obj.Data))
}

func TestUpdateRefusesConcurrentUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "widget-5", json.RawMessage(`{"count": 1}`))
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "widget-5", json.RawMessage(`{"count": 2}`), ghcomment.ModeAppend))

	err = s.Update(ctx, "widget-5", json.RawMessage(`{"count": 3}`), ghcomment.ModeAppend)
	require.ErrorIs(t, err, storeerrors.ErrConcurrentUpdate)

	obj, err := s.ProcessUpdates(ctx, "widget-5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 2}`, string(obj.Data))
}

func TestDeleteRemovesFromList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "widget-3", json.RawMessage(`{}`))
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, "widget-3"))

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.Get(ctx, "widget-3")
	require.ErrorIs(t, err, storeerrors.ErrObjectNotFound)
}

func TestCreateAliasRedirectsGetAndHistory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "primary", json.RawMessage(`{"v": 1}`))
	require.NoError(t, err)
	_, err = s.Create(ctx, "secondary", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.CreateAlias(ctx, "primary", "secondary"))

	obj, err := s.Get(ctx, "secondary")
	require.NoError(t, err)
	assert.Equal(t, "primary", obj.Meta.ObjectID)

	history, err := s.History(ctx, "secondary")
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	aliases, err := s.ListAliases(ctx, "primary")
	require.NoError(t, err)
	require.Len(t, aliases, 1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "widget-4", json.RawMessage(`{"count": 1}`))
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, snap.Objects, "widget-4")
	assert.JSONEq(t, `{"count": 1}`, string(snap.Objects["widget-4"].Data))
	assert.NotEmpty(t, snap.Repository)

	first := snap.SnapshotTime

	_, err = s.Create(ctx, "widget-5", json.RawMessage(`{"count": 2}`))
	require.NoError(t, err)

	updated, err := s.UpdateSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.True(t, updated.SnapshotTime.After(first) || updated.SnapshotTime.Equal(first))
	assert.Contains(t, updated.Objects, "widget-4")
	assert.Contains(t, updated.Objects, "widget-5")
	assert.JSONEq(t, `{"count": 2}`, string(updated.Objects["widget-5"].Data))
}

func TestListUpdatedSinceFiltersByComputedTimestamp(t *testing.T) {
	s, gw := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gw.Now = func() time.Time { return base }

	_, err := s.Create(ctx, "old", json.RawMessage(`{}`))
	require.NoError(t, err)

	gw.Now = func() time.Time { return base.Add(time.Hour) }
	_, err = s.Create(ctx, "new", json.RawMessage(`{}`))
	require.NoError(t, err)

	recent, err := s.ListUpdatedSince(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].Meta.ObjectID)
}

func TestReconcileDeduplicates(t *testing.T) {
	s, gw := newTestStore(t)
	ctx := context.Background()

	_, err := gw.CreateIssueAs(ctx, "author", "Stored Object: dup", "{}", []string{"stored-object", "UID:dup"})
	require.NoError(t, err)
	_, err = gw.CreateIssueAs(ctx, "author", "Stored Object: dup", "{}", []string{"stored-object", "UID:dup"})
	require.NoError(t, err)

	summary, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.GroupsProcessed)
	assert.Equal(t, 1, summary.IssuesDeprecated)
}
