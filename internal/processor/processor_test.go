package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarx/gh-store/internal/access"
	"github.com/dmarx/gh-store/internal/gatewaytest"
	"github.com/dmarx/gh-store/internal/ghcomment"
	"github.com/dmarx/gh-store/internal/ghlabel"
	"github.com/dmarx/gh-store/internal/issuestore"
	"github.com/dmarx/gh-store/internal/storeerrors"
)

// The fake's owner login is "author" to match the author the fake's
// CreateIssue/CreateComment record, so anchors created through
// issuestore.CreateAnchor are authorized without a CODEOWNERS fixture.
func newHarness(t *testing.T) (*Processor, *gatewaytest.Fake, *issuestore.Store) {
	t.Helper()
	gw := gatewaytest.New("author")
	codec := ghlabel.NewCodec("", "")
	is := issuestore.New(gw, codec, nil)
	ac := access.New(gw, nil)
	return New(gw, is, ac, codec, nil), gw, is
}

func envelopeBody(t *testing.T, data string, mode ghcomment.UpdateMode, ts time.Time) string {
	t.Helper()
	env := ghcomment.Encode(json.RawMessage(data), mode, ghcomment.TypeNone, "test/1")
	env.Meta.Timestamp = ts.UTC().Format(time.RFC3339)
	body, err := ghcomment.Marshal(env)
	require.NoError(t, err)
	return body
}

// S1 -- single update.
func TestProcessSingleUpdate(t *testing.T) {
	p, gw, _ := newHarness(t)
	ctx := context.Background()

	obj, err := p.Issues.CreateAnchor(ctx, "s1", json.RawMessage(`{"value":42}`))
	require.NoError(t, err)

	body := envelopeBody(t, `{"value":43}`, ghcomment.ModeAppend, time.Now())
	_, err = gw.CreateCommentAs(ctx, "author", obj.Meta.IssueNumber, body)
	require.NoError(t, err)

	result, err := p.Process(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":43}`, string(result.Data))

	issue, _ := gw.GetIssue(ctx, obj.Meta.IssueNumber)
	assert.Equal(t, "closed", string(issue.State))
}

// S2 -- deep merge.
func TestProcessDeepMerge(t *testing.T) {
	p, gw, _ := newHarness(t)
	ctx := context.Background()

	base := `{"user":{"profile":{"name":"Alice","settings":{"theme":"dark"}},"score":10}}`
	obj, err := p.Issues.CreateAnchor(ctx, "s2", json.RawMessage(base))
	require.NoError(t, err)

	update := `{"user":{"profile":{"settings":{"theme":"light"}},"score":15}}`
	body := envelopeBody(t, update, ghcomment.ModeAppend, time.Now())
	_, err = gw.CreateCommentAs(ctx, "author", obj.Meta.IssueNumber, body)
	require.NoError(t, err)

	result, err := p.Process(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	want := `{"user":{"profile":{"name":"Alice","settings":{"theme":"light"}},"score":15}}`
	assert.JSONEq(t, want, string(result.Data))
}

// S3 -- unauthorized interleave.
func TestProcessUnauthorizedInterleave(t *testing.T) {
	p, gw, _ := newHarness(t)
	ctx := context.Background()

	obj, err := p.Issues.CreateAnchor(ctx, "s3", json.RawMessage(`{"status":"original"}`))
	require.NoError(t, err)

	early := time.Now()
	late := early.Add(time.Minute)

	hackedBody := envelopeBody(t, `{"status":"hacked"}`, ghcomment.ModeAppend, early)
	hacked, err := gw.CreateCommentAs(ctx, "mallory", obj.Meta.IssueNumber, hackedBody)
	require.NoError(t, err)

	updatedBody := envelopeBody(t, `{"status":"updated"}`, ghcomment.ModeAppend, late)
	_, err = gw.CreateCommentAs(ctx, "author", obj.Meta.IssueNumber, updatedBody)
	require.NoError(t, err)

	result, err := p.Process(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"updated"}`, string(result.Data))
	assert.False(t, gw.HasReaction(hacked.ID, "+1"))
}

// S5 -- replace mode.
func TestProcessReplaceMode(t *testing.T) {
	p, gw, _ := newHarness(t)
	ctx := context.Background()

	obj, err := p.Issues.CreateAnchor(ctx, "s5", json.RawMessage(`{"a":1,"b":2}`))
	require.NoError(t, err)

	body := envelopeBody(t, `{"c":3}`, ghcomment.ModeReplace, time.Now())
	_, err = gw.CreateCommentAs(ctx, "author", obj.Meta.IssueNumber, body)
	require.NoError(t, err)

	result, err := p.Process(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":3}`, string(result.Data))
}

func TestProcessOrderingAcrossAliases(t *testing.T) {
	p, gw, _ := newHarness(t)
	ctx := context.Background()

	canonical, err := p.Issues.CreateAnchor(ctx, "metrics", json.RawMessage(`{"value":0}`))
	require.NoError(t, err)

	require.NoError(t, gw.AddLabels(ctx, canonical.Meta.IssueNumber, []string{ghlabel.CanonicalLabel}))
	aliasIssue, err := gw.CreateIssueAs(ctx, "author", "Stored Object: daily-metrics", `{"alias_to":"metrics"}`,
		[]string{"stored-object", "UID:daily-metrics", ghlabel.AliasLabel, ghlabel.AliasToLabel(canonical.Meta.IssueNumber)})
	require.NoError(t, err)

	early := time.Now()
	late := early.Add(time.Minute)

	aliasBody := envelopeBody(t, `{"value":2}`, ghcomment.ModeAppend, late)
	_, err = gw.CreateCommentAs(ctx, "author", aliasIssue.Number, aliasBody)
	require.NoError(t, err)

	// Anchor comment arrives "later" in post order but with an earlier timestamp.
	anchorBody := envelopeBody(t, `{"value":1}`, ghcomment.ModeAppend, early)
	_, err = gw.CreateCommentAs(ctx, "author", canonical.Meta.IssueNumber, anchorBody)
	require.NoError(t, err)

	result, err := p.Process(ctx, canonical.Meta.IssueNumber)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":2}`, string(result.Data))

	// Processing the alias redirects to the canonical and converges.
	result2, err := p.Process(ctx, aliasIssue.Number)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":2}`, string(result2.Data))
}

func TestProcessAlreadyProcessedNotReapplied(t *testing.T) {
	p, gw, _ := newHarness(t)
	ctx := context.Background()

	obj, err := p.Issues.CreateAnchor(ctx, "idem", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)

	body := envelopeBody(t, `{"n":2}`, ghcomment.ModeAppend, time.Now())
	c, err := gw.CreateCommentAs(ctx, "author", obj.Meta.IssueNumber, body)
	require.NoError(t, err)

	_, err = p.Process(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	require.True(t, gw.HasReaction(c.ID, "+1"))

	// Re-run process with nothing new: state must not change even
	// though the comment is still physically present (P3/P4).
	require.NoError(t, gw.AddLabels(ctx, obj.Meta.IssueNumber, nil)) // no-op, keeps labels stable
	result, err := p.Process(ctx, obj.Meta.IssueNumber)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(result.Data))
}

func TestProcessAccessDeniedForUnauthorizedAnchorCreator(t *testing.T) {
	p, gw, _ := newHarness(t)
	ctx := context.Background()

	issue, err := gw.CreateIssueAs(ctx, "mallory", "Stored Object: bad", `{}`, []string{"stored-object", "UID:bad"})
	require.NoError(t, err)

	_, err = p.Process(ctx, issue.Number)
	assert.ErrorIs(t, err, storeerrors.ErrAccessDenied)
}
