// Package alias implements the AliasResolver component (spec.md
// section 4.6): resolving an alias chain to its canonical issue,
// listing the aliases of a canonical object, and creating new aliases.
// Grounded on the teacher's internal/routing package, which resolves a
// multi-hop forward chain the same way: follow a pointer, bound the
// depth, and return a typed error rather than loop forever.
package alias

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmarx/gh-store/internal/gateway"
	"github.com/dmarx/gh-store/internal/ghcomment"
	"github.com/dmarx/gh-store/internal/ghlabel"
	"github.com/dmarx/gh-store/internal/storeerrors"
)

// MaxDepth bounds alias chain traversal (spec.md's MAX_ALIAS_DEPTH).
const MaxDepth = 5

// ErrCircularReference is returned when resolving an alias chain
// exceeds MaxDepth hops without reaching a canonical issue.
var ErrCircularReference = storeerrors.ErrCircularReference

// Resolver resolves and creates aliases.
type Resolver struct {
	GW     gateway.RepoGateway
	Codec  ghlabel.Codec
	Logger *slog.Logger
}

// New constructs a Resolver. logger may be nil.
func New(gw gateway.RepoGateway, codec ghlabel.Codec, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{GW: gw, Codec: codec, Logger: logger}
}

// IsAlias reports whether issue carries the alias-object label.
func IsAlias(issue gateway.Issue) bool {
	return ghlabel.HasLabel(issue.Labels, ghlabel.AliasLabel)
}

// IsCanonical reports whether issue carries the canonical-object label.
func IsCanonical(issue gateway.Issue) bool {
	return ghlabel.HasLabel(issue.Labels, ghlabel.CanonicalLabel)
}

// ResolveCanonical follows the ALIAS-TO chain starting at issueNumber
// until it reaches a non-alias issue, bounded by MaxDepth hops.
// Returns storeerrors.ErrObjectNotFound if any hop's target doesn't
// exist, and ErrCircularReference if the chain doesn't terminate
// within MaxDepth.
func (r *Resolver) ResolveCanonical(ctx context.Context, issueNumber int) (gateway.Issue, error) {
	current := issueNumber
	for depth := 0; depth <= MaxDepth; depth++ {
		issue, err := r.GW.GetIssue(ctx, current)
		if err != nil {
			if errors.Is(err, gateway.ErrNotFound) {
				return gateway.Issue{}, storeerrors.Wrap("ResolveCanonical", "", storeerrors.ErrObjectNotFound)
			}
			return gateway.Issue{}, fmt.Errorf("alias: get issue #%d: %w", current, err)
		}
		if !IsAlias(issue) {
			return issue, nil
		}
		target, ok := ghlabel.AliasTarget(issue.Labels)
		if !ok {
			return gateway.Issue{}, fmt.Errorf("alias: issue #%d is labeled alias but has no ALIAS-TO target", current)
		}
		if target == current {
			return gateway.Issue{}, storeerrors.Wrap("ResolveCanonical", "", ErrCircularReference)
		}
		current = target
	}
	return gateway.Issue{}, storeerrors.Wrap("ResolveCanonical", "", ErrCircularReference)
}

// FindAliases lists every issue whose ALIAS-TO label points at
// canonicalIssue.
func (r *Resolver) FindAliases(ctx context.Context, canonicalIssue int) ([]gateway.Issue, error) {
	issues, err := r.GW.ListIssues(ctx, gateway.ListOptions{
		Labels: []string{ghlabel.AliasToLabel(canonicalIssue)},
		State:  gateway.StateAll,
	})
	if err != nil {
		return nil, fmt.Errorf("alias: list aliases of #%d: %w", canonicalIssue, err)
	}
	return issues, nil
}

// CreateAlias turns aliasIssue into an alias of canonical: labels the
// alias issue alias-object/ALIAS-TO:<n>, labels the canonical issue
// canonical-object if it isn't already, and posts a system_alias
// comment on the alias and a system_alias_reference comment on the
// canonical issue.
//
// canonical and aliasIssue must already be existing anchors; callers
// typically resolve them via issuestore.Store.FindAnchor first.
func (r *Resolver) CreateAlias(ctx context.Context, canonical, aliasIssue gateway.Issue) error {
	if IsAlias(canonical) {
		return fmt.Errorf("alias: issue #%d is itself an alias, cannot be a canonical target", canonical.Number)
	}
	if aliasIssue.Number == canonical.Number {
		return fmt.Errorf("alias: issue #%d cannot alias itself", canonical.Number)
	}

	if !IsCanonical(canonical) {
		if err := r.GW.AddLabels(ctx, canonical.Number, []string{ghlabel.CanonicalLabel}); err != nil {
			return fmt.Errorf("alias: label #%d canonical: %w", canonical.Number, err)
		}
	}

	aliasLabels := []string{ghlabel.AliasLabel, ghlabel.AliasToLabel(canonical.Number)}
	if err := r.GW.AddLabels(ctx, aliasIssue.Number, aliasLabels); err != nil {
		return fmt.Errorf("alias: label #%d as alias: %w", aliasIssue.Number, err)
	}

	canonicalID, err := r.Codec.ExtractUID(canonical.Labels)
	if err != nil {
		canonicalID = fmt.Sprintf("issue-%d", canonical.Number)
	}
	aliasID, err := r.Codec.ExtractUID(aliasIssue.Labels)
	if err != nil {
		aliasID = fmt.Sprintf("issue-%d", aliasIssue.Number)
	}

	aliasPayload, _ := json.Marshal(map[string]string{"alias_to": canonicalID})
	aliasEnv := ghcomment.EncodeSystem(aliasPayload, ghcomment.TypeSystemAlias)
	aliasBody, err := ghcomment.Marshal(aliasEnv)
	if err != nil {
		return fmt.Errorf("alias: encode system_alias envelope: %w", err)
	}
	if _, err := r.GW.CreateComment(ctx, aliasIssue.Number, aliasBody); err != nil {
		return fmt.Errorf("alias: post system_alias comment on #%d: %w", aliasIssue.Number, err)
	}

	refPayload, _ := json.Marshal(map[string]string{"alias": aliasID})
	refEnv := ghcomment.EncodeSystem(refPayload, ghcomment.TypeSystemAliasReference)
	refBody, err := ghcomment.Marshal(refEnv)
	if err != nil {
		return fmt.Errorf("alias: encode system_alias_reference envelope: %w", err)
	}
	if _, err := r.GW.CreateComment(ctx, canonical.Number, refBody); err != nil {
		return fmt.Errorf("alias: post system_alias_reference comment on #%d: %w", canonical.Number, err)
	}

	r.Logger.Info("alias: created", "canonical", canonical.Number, "alias", aliasIssue.Number)
	return nil
}
