package ghlabel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarx/gh-store/internal/gatewaytest"
)

func TestEncodeUIDIdempotent(t *testing.T) {
	c := NewCodec("", "")
	assert.Equal(t, "UID:foo", c.EncodeUID("foo"))
	assert.Equal(t, "UID:foo", c.EncodeUID("UID:foo"))
}

func TestDecodeUID(t *testing.T) {
	c := NewCodec("", "")
	id, ok := c.DecodeUID("UID:foo")
	require.True(t, ok)
	assert.Equal(t, "foo", id)

	_, ok = c.DecodeUID("stored-object")
	assert.False(t, ok)
}

func TestExtractUID(t *testing.T) {
	c := NewCodec("", "")
	id, err := c.ExtractUID([]string{"stored-object", "UID:bar", "archived"})
	require.NoError(t, err)
	assert.Equal(t, "bar", id)

	_, err = c.ExtractUID([]string{"stored-object"})
	assert.ErrorIs(t, err, ErrNoUIDLabel)
}

func TestQueryLabels(t *testing.T) {
	c := NewCodec("objects", "OBJ:")
	assert.Equal(t, []string{"objects", "OBJ:foo"}, c.QueryLabels("foo"))
}

func TestClassify(t *testing.T) {
	c := NewCodec("", "")

	cases := []struct {
		label string
		kind  Kind
	}{
		{"stored-object", KindBase},
		{"UID:foo", KindUID},
		{"canonical-object", KindCanonical},
		{"alias-object", KindAlias},
		{"ALIAS-TO:42", KindAliasTo},
		{"deprecated-object", KindDeprecated},
		{"MERGED-INTO:foo", KindMergedInto},
		{"archived", KindArchived},
		{"unrelated-label", KindOther},
	}
	for _, tc := range cases {
		got := c.Classify(tc.label)
		assert.Equalf(t, tc.kind, got.Kind, "label %q", tc.label)
	}

	cl := c.Classify("ALIAS-TO:42")
	assert.Equal(t, 42, cl.AliasToIssue)

	cl = c.Classify("MERGED-INTO:bar")
	assert.Equal(t, "bar", cl.MergedIntoID)

	cl = c.Classify("UID:baz")
	assert.Equal(t, "baz", cl.UID)
}

func TestClassifyMalformedAliasTo(t *testing.T) {
	c := NewCodec("", "")
	cl := c.Classify("ALIAS-TO:not-a-number")
	assert.Equal(t, KindOther, cl.Kind)
}

func TestAliasTarget(t *testing.T) {
	n, ok := AliasTarget([]string{"stored-object", "ALIAS-TO:7"})
	require.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = AliasTarget([]string{"stored-object"})
	assert.False(t, ok)
}

func TestHasLabel(t *testing.T) {
	assert.True(t, HasLabel([]string{"a", "b"}, "b"))
	assert.False(t, HasLabel([]string{"a", "b"}, "c"))
}

func TestEnsureVocabularyCreatesMissingOnly(t *testing.T) {
	gw := gatewaytest.New("author")
	ctx := context.Background()
	require.NoError(t, gw.CreateLabel(ctx, CanonicalLabel, "0366d6", "already exists"))

	c := NewCodec("", "")
	require.NoError(t, c.EnsureVocabulary(ctx, gw))

	labels, err := gw.ListLabels(ctx)
	require.NoError(t, err)
	want := []string{DefaultBaseLabel, CanonicalLabel, AliasLabel, DeprecatedLabel, ArchivedLabel}
	for _, w := range want {
		assert.Contains(t, labels, w)
	}

	// Calling again is a no-op, not an error.
	require.NoError(t, c.EnsureVocabulary(ctx, gw))
}
