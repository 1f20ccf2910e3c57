package issuestore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarx/gh-store/internal/gatewaytest"
	"github.com/dmarx/gh-store/internal/ghlabel"
	"github.com/dmarx/gh-store/internal/storeerrors"
)

func newStore() (*Store, *gatewaytest.Fake) {
	gw := gatewaytest.New("acme")
	return New(gw, ghlabel.NewCodec("", ""), nil), gw
}

func TestCreateAnchorBasics(t *testing.T) {
	s, gw := newStore()
	ctx := context.Background()

	obj, err := s.CreateAnchor(ctx, "widget-1", json.RawMessage(`{"value":42}`))
	require.NoError(t, err)
	assert.Equal(t, 1, obj.Meta.Version)
	assert.Equal(t, "widget-1", obj.Meta.ObjectID)

	issue, err := gw.GetIssue(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	assert.Equal(t, "closed", string(issue.State))
	assert.True(t, ghlabel.HasLabel(issue.Labels, "stored-object"))
	assert.True(t, ghlabel.HasLabel(issue.Labels, "UID:widget-1"))

	comments, err := gw.ListComments(ctx, issue.Number)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.True(t, gw.HasReaction(comments[0].ID, "+1"))
	assert.True(t, gw.HasReaction(comments[0].ID, "rocket"))
}

func TestCreateAnchorDuplicateUID(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	_, err := s.CreateAnchor(ctx, "widget-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = s.CreateAnchor(ctx, "widget-1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, storeerrors.ErrDuplicateUID)
}

func TestFindAnchorNotFound(t *testing.T) {
	s, _ := newStore()
	_, err := s.FindAnchor(context.Background(), "missing")
	assert.ErrorIs(t, err, storeerrors.ErrObjectNotFound)
}

func TestFindAnchorPrefersCanonicalOnDuplication(t *testing.T) {
	s, gw := newStore()
	ctx := context.Background()
	labels := []string{"stored-object", "UID:dup"}

	_, err := gw.CreateIssueAs(ctx, "author", "Stored Object: dup", "{}", labels)
	require.NoError(t, err)
	canonical, err := gw.CreateIssueAs(ctx, "author", "Stored Object: dup", "{}", append(append([]string{}, labels...), "canonical-object"))
	require.NoError(t, err)

	found, err := s.FindAnchor(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, canonical.Number, found.Number)
}

func TestArchiveRemovesFromSearch(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	_, err := s.CreateAnchor(ctx, "to-delete", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.Archive(ctx, "to-delete"))

	_, err = s.FindAnchor(ctx, "to-delete")
	assert.ErrorIs(t, err, storeerrors.ErrObjectNotFound)
}

func TestWriteBodyAndReopen(t *testing.T) {
	s, gw := newStore()
	ctx := context.Background()
	obj, err := s.CreateAnchor(ctx, "w", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	require.NoError(t, s.Reopen(ctx, obj.Meta.IssueNumber))
	issue, _ := gw.GetIssue(ctx, obj.Meta.IssueNumber)
	assert.Equal(t, "open", string(issue.State))

	require.NoError(t, s.WriteBody(ctx, obj.Meta.IssueNumber, json.RawMessage(`{"a":2}`)))
	issue, _ = gw.GetIssue(ctx, obj.Meta.IssueNumber)
	assert.Equal(t, "closed", string(issue.State))
	assert.JSONEq(t, `{"a":2}`, issue.Body)
}

func TestHistorySkipsMalformedAndSortsByTime(t *testing.T) {
	s, gw := newStore()
	ctx := context.Background()
	obj, err := s.CreateAnchor(ctx, "h", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = gw.CreateCommentAs(ctx, "author", obj.Meta.IssueNumber, "not json")
	require.NoError(t, err)
	_, err = gw.CreateCommentAs(ctx, "author", obj.Meta.IssueNumber, `{"status":"ok"}`)
	require.NoError(t, err)

	entries, err := s.History(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	// Initial-state comment + the one valid legacy comment; malformed skipped.
	require.Len(t, entries, 2)
}
