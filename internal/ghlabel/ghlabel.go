// Package ghlabel maps between object identifiers and the tracker's
// label strings, and classifies labels into the store's grammar
// (spec.md section 3, "Relationships & label grammar"). The codec is
// pure string manipulation with no I/O, the same shape as the teacher's
// label-to-value helpers in internal/github/types.go
// (ParseLabelName, GetPriorityFromLabel, ...); EnsureVocabulary is the
// one function here that talks to the gateway.
package ghlabel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmarx/gh-store/internal/gateway"
)

// ErrNoUIDLabel is returned by ExtractUID when no label in the set
// carries the uid prefix.
var ErrNoUIDLabel = errors.New("ghlabel: no uid label present")

// Default label vocabulary. Overridable via Codec fields so a Store
// can honor store.base_label / store.uid_prefix configuration.
const (
	DefaultBaseLabel  = "stored-object"
	DefaultUIDPrefix  = "UID:"
	CanonicalLabel    = "canonical-object"
	AliasLabel        = "alias-object"
	AliasToPrefix     = "ALIAS-TO:"
	DeprecatedLabel   = "deprecated-object"
	MergedIntoPrefix  = "MERGED-INTO:"
	ArchivedLabel     = "archived"
)

// Kind identifies what role a single label plays in the grammar.
type Kind int

const (
	KindOther Kind = iota
	KindBase
	KindUID
	KindCanonical
	KindAlias
	KindAliasTo
	KindDeprecated
	KindMergedInto
	KindArchived
)

// Classification is the result of inspecting one label string.
type Classification struct {
	Kind Kind
	// AliasToIssue is populated when Kind == KindAliasTo.
	AliasToIssue int
	// MergedIntoID is populated when Kind == KindMergedInto.
	MergedIntoID string
	// UID is populated when Kind == KindUID.
	UID string
}

// Codec maps object ids to/from label strings. The zero value uses the
// default base label and uid prefix.
type Codec struct {
	BaseLabel string
	UIDPrefix string
}

// NewCodec constructs a Codec, falling back to the defaults for any
// empty field.
func NewCodec(baseLabel, uidPrefix string) Codec {
	if baseLabel == "" {
		baseLabel = DefaultBaseLabel
	}
	if uidPrefix == "" {
		uidPrefix = DefaultUIDPrefix
	}
	return Codec{BaseLabel: baseLabel, UIDPrefix: uidPrefix}
}

func (c Codec) baseLabel() string {
	if c.BaseLabel == "" {
		return DefaultBaseLabel
	}
	return c.BaseLabel
}

// BaseLabelOrDefault returns the configured base label, or
// DefaultBaseLabel if unset.
func (c Codec) BaseLabelOrDefault() string {
	return c.baseLabel()
}

func (c Codec) uidPrefix() string {
	if c.UIDPrefix == "" {
		return DefaultUIDPrefix
	}
	return c.UIDPrefix
}

// EncodeUID returns the uid label for id. Idempotent: encoding an
// already-prefixed string does not double-prefix it.
func (c Codec) EncodeUID(id string) string {
	prefix := c.uidPrefix()
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

// DecodeUID extracts the object id from a uid label. Returns ("",
// false) if label does not carry the uid prefix.
func (c Codec) DecodeUID(label string) (string, bool) {
	prefix := c.uidPrefix()
	if !strings.HasPrefix(label, prefix) {
		return "", false
	}
	return strings.TrimPrefix(label, prefix), true
}

// ExtractUID returns the first uid carried by labels, or
// ErrNoUIDLabel if none qualify.
func (c Codec) ExtractUID(labels []string) (string, error) {
	for _, l := range labels {
		if id, ok := c.DecodeUID(l); ok {
			return id, nil
		}
	}
	return "", ErrNoUIDLabel
}

// QueryLabels returns the label set used to look up the anchor for
// id: the base label plus its uid label.
func (c Codec) QueryLabels(id string) []string {
	return []string{c.baseLabel(), c.EncodeUID(id)}
}

// Classify inspects a single label and reports its role in the
// grammar.
func (c Codec) Classify(label string) Classification {
	switch {
	case label == c.baseLabel():
		return Classification{Kind: KindBase}
	case label == CanonicalLabel:
		return Classification{Kind: KindCanonical}
	case label == AliasLabel:
		return Classification{Kind: KindAlias}
	case label == DeprecatedLabel:
		return Classification{Kind: KindDeprecated}
	case label == ArchivedLabel:
		return Classification{Kind: KindArchived}
	case strings.HasPrefix(label, AliasToPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(label, AliasToPrefix))
		if err != nil {
			return Classification{Kind: KindOther}
		}
		return Classification{Kind: KindAliasTo, AliasToIssue: n}
	case strings.HasPrefix(label, MergedIntoPrefix):
		return Classification{Kind: KindMergedInto, MergedIntoID: strings.TrimPrefix(label, MergedIntoPrefix)}
	}
	if id, ok := c.DecodeUID(label); ok {
		return Classification{Kind: KindUID, UID: id}
	}
	return Classification{Kind: KindOther}
}

// AliasToLabel formats the ALIAS-TO label pointing at a canonical
// issue number.
func AliasToLabel(issueNumber int) string {
	return fmt.Sprintf("%s%d", AliasToPrefix, issueNumber)
}

// MergedIntoLabel formats the MERGED-INTO label pointing at a
// canonical object id.
func MergedIntoLabel(id string) string {
	return MergedIntoPrefix + id
}

// HasLabel reports whether labels contains target.
func HasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if l == target {
			return true
		}
	}
	return false
}

// AliasTarget returns the issue number the labels point to via
// ALIAS-TO, if present.
func AliasTarget(labels []string) (int, bool) {
	for _, l := range labels {
		if strings.HasPrefix(l, AliasToPrefix) {
			n, err := strconv.Atoi(strings.TrimPrefix(l, AliasToPrefix))
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// vocabularyLabel is one entry of the fixed special-label set
// EnsureVocabulary installs, grounded on label_manager.py's
// ensure_special_labels.
type vocabularyLabel struct {
	name, color, description string
}

// EnsureVocabulary creates the base grammar labels (base, canonical,
// alias, deprecated, archived) if they are missing, matching
// label_manager.py's one-time repository setup. store.Store.Init (the
// "ghstore init" command) calls it; other store operations do not.
// Per-object uid and ALIAS-TO/MERGED-INTO labels are created lazily by
// the operations that need them instead, since their names are
// unbounded.
func (c Codec) EnsureVocabulary(ctx context.Context, gw gateway.RepoGateway) error {
	vocabulary := []vocabularyLabel{
		{c.baseLabel(), "ededed", "Root label identifying an issue as a gh-store object"},
		{CanonicalLabel, "0366d6", "Canonical object that may have aliases"},
		{AliasLabel, "fbca04", "Object that is an alias to a canonical object"},
		{DeprecatedLabel, "999999", "Object that has been deprecated in favor of another"},
		{ArchivedLabel, "d73a49", "Object soft-deleted but retained for history"},
	}

	existing, err := gw.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("ghlabel: list labels: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, l := range existing {
		have[l] = true
	}

	for _, v := range vocabulary {
		if have[v.name] {
			continue
		}
		if err := gw.CreateLabel(ctx, v.name, v.color, v.description); err != nil {
			return fmt.Errorf("ghlabel: create label %q: %w", v.name, err)
		}
	}
	return nil
}
