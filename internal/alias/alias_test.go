package alias

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarx/gh-store/internal/gatewaytest"
	"github.com/dmarx/gh-store/internal/ghlabel"
)

func newResolver(t *testing.T) (*Resolver, *gatewaytest.Fake) {
	t.Helper()
	gw := gatewaytest.New("author")
	return New(gw, ghlabel.NewCodec("", ""), nil), gw
}

func TestResolveCanonicalNonAliasIsItself(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()

	issue, err := gw.CreateIssueAs(ctx, "author", "Stored Object: x", "{}", []string{"stored-object", "UID:x"})
	require.NoError(t, err)

	resolved, err := r.ResolveCanonical(ctx, issue.Number)
	require.NoError(t, err)
	assert.Equal(t, issue.Number, resolved.Number)
}

func TestResolveCanonicalFollowsSingleHop(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()

	canonical, err := gw.CreateIssueAs(ctx, "author", "Stored Object: c", "{}", []string{"stored-object", "UID:c", ghlabel.CanonicalLabel})
	require.NoError(t, err)

	aliasIssue, err := gw.CreateIssueAs(ctx, "author", "Stored Object: a", "{}",
		[]string{"stored-object", "UID:a", ghlabel.AliasLabel, ghlabel.AliasToLabel(canonical.Number)})
	require.NoError(t, err)

	resolved, err := r.ResolveCanonical(ctx, aliasIssue.Number)
	require.NoError(t, err)
	assert.Equal(t, canonical.Number, resolved.Number)
}

func TestResolveCanonicalFollowsChainWithinDepth(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()

	canonical, err := gw.CreateIssueAs(ctx, "author", "Stored Object: c", "{}", []string{"stored-object", "UID:c", ghlabel.CanonicalLabel})
	require.NoError(t, err)

	target := canonical.Number
	for i := 0; i < MaxDepth; i++ {
		a, err := gw.CreateIssueAs(ctx, "author", "Stored Object: hop", "{}",
			[]string{"stored-object", ghlabel.AliasLabel, ghlabel.AliasToLabel(target)})
		require.NoError(t, err)
		target = a.Number
	}
	// target now names the outermost alias, MaxDepth hops from canonical.

	resolved, err := r.ResolveCanonical(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, canonical.Number, resolved.Number)
}

func TestResolveCanonicalCircularReference(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()

	a, err := gw.CreateIssueAs(ctx, "author", "Stored Object: a", "{}", []string{"stored-object", ghlabel.AliasLabel})
	require.NoError(t, err)
	b, err := gw.CreateIssueAs(ctx, "author", "Stored Object: b", "{}",
		[]string{"stored-object", ghlabel.AliasLabel, ghlabel.AliasToLabel(a.Number)})
	require.NoError(t, err)
	require.NoError(t, gw.AddLabels(ctx, a.Number, []string{ghlabel.AliasToLabel(b.Number)}))

	_, err = r.ResolveCanonical(ctx, a.Number)
	assert.ErrorIs(t, err, ErrCircularReference)
}

func TestResolveCanonicalExceedsMaxDepth(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()

	canonical, err := gw.CreateIssueAs(ctx, "author", "Stored Object: c", "{}", []string{"stored-object", "UID:c", ghlabel.CanonicalLabel})
	require.NoError(t, err)

	target := canonical.Number
	for i := 0; i < MaxDepth+2; i++ {
		a, err := gw.CreateIssueAs(ctx, "author", "Stored Object: hop", "{}",
			[]string{"stored-object", ghlabel.AliasLabel, ghlabel.AliasToLabel(target)})
		require.NoError(t, err)
		target = a.Number
	}

	_, err = r.ResolveCanonical(ctx, target)
	assert.ErrorIs(t, err, ErrCircularReference)
}

func TestFindAliases(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()

	canonical, err := gw.CreateIssueAs(ctx, "author", "Stored Object: c", "{}", []string{"stored-object", "UID:c", ghlabel.CanonicalLabel})
	require.NoError(t, err)
	alias1, err := gw.CreateIssueAs(ctx, "author", "Stored Object: a1", "{}",
		[]string{"stored-object", "UID:a1", ghlabel.AliasLabel, ghlabel.AliasToLabel(canonical.Number)})
	require.NoError(t, err)
	_, err = gw.CreateIssueAs(ctx, "author", "Stored Object: unrelated", "{}", []string{"stored-object", "UID:z"})
	require.NoError(t, err)

	aliases, err := r.FindAliases(ctx, canonical.Number)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, alias1.Number, aliases[0].Number)
}

func TestCreateAliasLabelsAndPostsBothSides(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()

	canonical, err := gw.CreateIssueAs(ctx, "author", "Stored Object: c", "{}", []string{"stored-object", "UID:c"})
	require.NoError(t, err)
	other, err := gw.CreateIssueAs(ctx, "author", "Stored Object: d", "{}", []string{"stored-object", "UID:d"})
	require.NoError(t, err)

	require.NoError(t, r.CreateAlias(ctx, canonical, other))

	canonicalIssue, err := gw.GetIssue(ctx, canonical.Number)
	require.NoError(t, err)
	assert.True(t, ghlabel.HasLabel(canonicalIssue.Labels, ghlabel.CanonicalLabel))

	aliasIssue, err := gw.GetIssue(ctx, other.Number)
	require.NoError(t, err)
	assert.True(t, ghlabel.HasLabel(aliasIssue.Labels, ghlabel.AliasLabel))
	target, ok := ghlabel.AliasTarget(aliasIssue.Labels)
	require.True(t, ok)
	assert.Equal(t, canonical.Number, target)

	aliasComments, err := gw.ListComments(ctx, other.Number)
	require.NoError(t, err)
	require.Len(t, aliasComments, 1)

	canonicalComments, err := gw.ListComments(ctx, canonical.Number)
	require.NoError(t, err)
	require.Len(t, canonicalComments, 1)
}

func TestCreateAliasRejectsSelfAlias(t *testing.T) {
	r, gw := newResolver(t)
	ctx := context.Background()
	issue, err := gw.CreateIssueAs(ctx, "author", "Stored Object: x", "{}", []string{"stored-object", "UID:x"})
	require.NoError(t, err)

	err = r.CreateAlias(ctx, issue, issue)
	assert.Error(t, err)
}
