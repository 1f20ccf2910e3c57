// Package processor implements the UpdateProcessor component (spec.md
// section 4.5): given an anchor issue, collect unprocessed authorized
// comments, merge them into the current state in timestamp order,
// persist the new body, and mark the comments processed.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmarx/gh-store/internal/access"
	"github.com/dmarx/gh-store/internal/gateway"
	"github.com/dmarx/gh-store/internal/ghcomment"
	"github.com/dmarx/gh-store/internal/ghlabel"
	"github.com/dmarx/gh-store/internal/issuestore"
	"github.com/dmarx/gh-store/internal/storeerrors"
)

// Reactions names the reactions used as the per-comment consumed bit
// (Processed) and the initial-state marker (InitialState).
// Configurable to honor store.reactions.* (spec.md section 6).
type Reactions struct {
	Processed     string
	InitialState  string
}

// DefaultReactions matches spec.md's defaults.
func DefaultReactions() Reactions {
	return Reactions{Processed: "+1", InitialState: "rocket"}
}

// Processor replays unprocessed comments into an anchor's body.
type Processor struct {
	GW        gateway.RepoGateway
	Issues    *issuestore.Store
	Access    *access.Control
	Codec     ghlabel.Codec
	Reactions Reactions
	Logger    *slog.Logger
}

// New constructs a Processor. logger may be nil.
func New(gw gateway.RepoGateway, issues *issuestore.Store, ac *access.Control, codec ghlabel.Codec, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{GW: gw, Issues: issues, Access: ac, Codec: codec, Reactions: DefaultReactions(), Logger: logger}
}

// candidate is one update surviving the filter in Process, tagged
// with its source issue so step 5's ordering tiebreak
// (source_issue_number, comment_id) has what it needs.
type candidate struct {
	sourceIssue int
	comment     gateway.Comment
	parsed      ghcomment.ParsedComment
	ts          time.Time
}

// Process runs one process cycle for issueNumber, per spec.md section
// 4.5. It follows at most one alias redirection: an alias's ALIAS-TO
// target is processed as the anchor, with a warning if that target is
// itself an alias.
func (p *Processor) Process(ctx context.Context, issueNumber int) (issuestore.StoredObject, error) {
	issue, err := p.GW.GetIssue(ctx, issueNumber)
	if err != nil {
		return issuestore.StoredObject{}, storeerrors.Wrap("Process", "", storeerrors.ErrObjectNotFound)
	}

	if ghlabel.HasLabel(issue.Labels, ghlabel.AliasLabel) {
		target, ok := ghlabel.AliasTarget(issue.Labels)
		if !ok {
			return issuestore.StoredObject{}, fmt.Errorf("processor: alias issue #%d has no ALIAS-TO label", issueNumber)
		}
		issue, err = p.GW.GetIssue(ctx, target)
		if err != nil {
			return issuestore.StoredObject{}, storeerrors.Wrap("Process", "", storeerrors.ErrObjectNotFound)
		}
		if ghlabel.HasLabel(issue.Labels, ghlabel.AliasLabel) {
			p.Logger.Warn("processor: alias target is itself an alias, processing it as the anchor",
				"alias", issueNumber, "target", target)
		}
	}

	if !p.Access.ValidateIssueCreator(ctx, issue) {
		return issuestore.StoredObject{}, storeerrors.Wrap("Process", "", storeerrors.ErrAccessDenied)
	}

	isCanonical := ghlabel.HasLabel(issue.Labels, ghlabel.CanonicalLabel)

	candidates, err := p.collect(ctx, issue, isCanonical)
	if err != nil {
		return issuestore.StoredObject{}, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].ts.Equal(candidates[j].ts) {
			return candidates[i].ts.Before(candidates[j].ts)
		}
		if candidates[i].sourceIssue != candidates[j].sourceIssue {
			return candidates[i].sourceIssue < candidates[j].sourceIssue
		}
		return candidates[i].comment.ID < candidates[j].comment.ID
	})

	state := json.RawMessage(issue.Body)
	if len(state) == 0 {
		state = json.RawMessage("{}")
	}
	for _, c := range candidates {
		merged, err := Apply(state, c.parsed.Data, c.parsed.Meta.UpdateMode)
		if err != nil {
			p.Logger.Warn("processor: skipping update that failed to apply", "comment_id", c.comment.ID, "error", err)
			continue
		}
		state = merged
	}

	if err := p.Issues.WriteBody(ctx, issue.Number, state); err != nil {
		return issuestore.StoredObject{}, fmt.Errorf("processor: write merged body: %w", err)
	}

	for _, c := range candidates {
		if err := p.GW.CreateReaction(ctx, c.comment.ID, p.Reactions.Processed); err != nil {
			p.Logger.Warn("processor: failed to mark comment processed, will be re-applied next cycle",
				"comment_id", c.comment.ID, "error", err)
		}
	}

	refetched, err := p.GW.GetIssue(ctx, issue.Number)
	if err != nil {
		return issuestore.StoredObject{}, fmt.Errorf("processor: refetch anchor after process: %w", err)
	}
	return p.Issues.ReadObject(ctx, refetched)
}

// collect gathers the unprocessed comments to consider: the anchor's
// own, plus -- if the anchor is canonical -- every alias's unprocessed
// comments, fetched concurrently via errgroup.
func (p *Processor) collect(ctx context.Context, issue gateway.Issue, isCanonical bool) ([]candidate, error) {
	var anchorComments []gateway.Comment
	var aliasGroups [][]gateway.Comment
	var aliasNumbers []int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cs, err := p.GW.ListComments(gctx, issue.Number)
		if err != nil {
			return fmt.Errorf("processor: list anchor comments: %w", err)
		}
		anchorComments = cs
		return nil
	})

	if isCanonical {
		aliases, err := p.GW.ListIssues(ctx, gateway.ListOptions{Labels: []string{ghlabel.AliasToLabel(issue.Number)}, State: gateway.StateAll})
		if err != nil {
			return nil, fmt.Errorf("processor: list aliases of #%d: %w", issue.Number, err)
		}
		aliasGroups = make([][]gateway.Comment, len(aliases))
		aliasNumbers = make([]int, len(aliases))
		for i, alias := range aliases {
			i, alias := i, alias
			aliasNumbers[i] = alias.Number
			if !p.Access.ValidateIssueCreator(ctx, alias) {
				p.Logger.Warn("processor: skipping alias with unauthorized creator", "alias", alias.Number, "creator", alias.Author.Login)
				continue
			}
			g.Go(func() error {
				cs, err := p.GW.ListComments(gctx, alias.Number)
				if err != nil {
					return fmt.Errorf("processor: list alias #%d comments: %w", alias.Number, err)
				}
				aliasGroups[i] = cs
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []candidate
	out = append(out, p.filterAndParse(ctx, issue.Number, anchorComments)...)
	for i, cs := range aliasGroups {
		if cs == nil {
			continue
		}
		out = append(out, p.filterAndParse(ctx, aliasNumbers[i], cs)...)
	}
	return out, nil
}

// filterAndParse applies step 4 of spec.md section 4.5: drop
// already-processed, system/initial-state, unauthorized, and
// malformed comments.
func (p *Processor) filterAndParse(ctx context.Context, sourceIssue int, comments []gateway.Comment) []candidate {
	var out []candidate
	for _, c := range comments {
		reactions, err := p.GW.ListReactions(ctx, c.ID)
		if err != nil {
			p.Logger.Warn("processor: failed to list reactions, skipping comment defensively", "comment_id", c.ID, "error", err)
			continue
		}
		if hasReaction(reactions, p.Reactions.Processed) {
			continue
		}

		parsed, err := ghcomment.Decode([]byte(c.Body), c.CreatedAt, c.ID)
		if err != nil {
			p.Logger.Warn("processor: skipping malformed comment", "comment_id", c.ID, "error", err)
			continue
		}
		if ghcomment.IsSystem(parsed) || parsed.Type == ghcomment.TypeInitialState {
			continue
		}
		if !p.Access.IsAuthorized(ctx, c.Author.Login) {
			p.Logger.Warn("processor: skipping comment from unauthorized author", "comment_id", c.ID, "author", c.Author.Login)
			continue
		}

		out = append(out, candidate{
			sourceIssue: sourceIssue,
			comment:     c,
			parsed:      parsed,
			ts:          ghcomment.EffectiveTimestamp(parsed),
		})
	}
	return out
}

func hasReaction(reactions []gateway.Reaction, content string) bool {
	for _, r := range reactions {
		if r.Content == content {
			return true
		}
	}
	return false
}
