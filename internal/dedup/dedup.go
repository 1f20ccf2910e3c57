// Package dedup implements the Deduplicator component (spec.md
// section 4.7): detecting multiple anchors that share a uid and
// collapsing them to one canonical anchor plus deprecated losers.
// Grounded on original_source/gh_store/tools/canonicalize.py's
// find_duplicates/deduplicate_object/deprecate_object, reworked into
// the teacher's error-wrapping and structured-logging idiom.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dmarx/gh-store/internal/gateway"
	"github.com/dmarx/gh-store/internal/ghcomment"
	"github.com/dmarx/gh-store/internal/ghlabel"
	"github.com/dmarx/gh-store/internal/processor"
)

// Reason names why an object was deprecated, stored in the
// system_deprecation envelope's payload.
type Reason string

const (
	ReasonDuplicate Reason = "duplicate"
	ReasonMerged    Reason = "merged"
	ReasonReplaced  Reason = "replaced"
)

// Deduplicator finds and collapses duplicate anchors.
type Deduplicator struct {
	GW      gateway.RepoGateway
	Codec   ghlabel.Codec
	Process *processor.Processor
	Logger  *slog.Logger
}

// New constructs a Deduplicator. proc drives the process cycle
// Deprecate runs on the winner after merging; logger may be nil.
func New(gw gateway.RepoGateway, codec ghlabel.Codec, proc *processor.Processor, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{GW: gw, Codec: codec, Process: proc, Logger: logger}
}

// FindDuplicates groups every non-archived, non-deprecated issue
// carrying a uid label by that uid, returning only the groups with
// more than one member.
func (d *Deduplicator) FindDuplicates(ctx context.Context) (map[string][]gateway.Issue, error) {
	issues, err := d.GW.ListIssues(ctx, gateway.ListOptions{Labels: []string{d.Codec.BaseLabelOrDefault()}, State: gateway.StateAll})
	if err != nil {
		return nil, fmt.Errorf("dedup: list stored objects: %w", err)
	}

	byUID := make(map[string][]gateway.Issue)
	for _, iss := range issues {
		if ghlabel.HasLabel(iss.Labels, ghlabel.ArchivedLabel) || ghlabel.HasLabel(iss.Labels, ghlabel.DeprecatedLabel) {
			continue
		}
		id, err := d.Codec.ExtractUID(iss.Labels)
		if err != nil {
			continue
		}
		byUID[id] = append(byUID[id], iss)
	}

	duplicates := make(map[string][]gateway.Issue)
	for id, group := range byUID {
		if len(group) > 1 {
			sort.Slice(group, func(i, j int) bool { return group[i].Number < group[j].Number })
			duplicates[id] = group
		}
	}
	return duplicates, nil
}

// Deprecate merges loser into winner: strips loser's uid label, tags
// it deprecated-object/MERGED-INTO:<winnerID>, and exchanges a
// system_deprecation/system_reference comment pair recording reason.
func (d *Deduplicator) Deprecate(ctx context.Context, loser, winner gateway.Issue, reason Reason) error {
	loserID, err := d.Codec.ExtractUID(loser.Labels)
	if err != nil {
		return fmt.Errorf("dedup: loser issue #%d has no uid label: %w", loser.Number, err)
	}
	winnerID, err := d.Codec.ExtractUID(winner.Labels)
	if err != nil {
		return fmt.Errorf("dedup: winner issue #%d has no uid label: %w", winner.Number, err)
	}

	if err := d.GW.RemoveLabel(ctx, loser.Number, d.Codec.EncodeUID(loserID)); err != nil {
		return fmt.Errorf("dedup: remove uid label from #%d: %w", loser.Number, err)
	}
	if err := d.GW.AddLabels(ctx, loser.Number, []string{ghlabel.DeprecatedLabel, ghlabel.MergedIntoLabel(winnerID)}); err != nil {
		return fmt.Errorf("dedup: label #%d deprecated: %w", loser.Number, err)
	}

	depPayload, _ := json.Marshal(map[string]string{
		"status":              "deprecated",
		"canonical_object_id": winnerID,
		"reason":              string(reason),
	})
	depEnv := ghcomment.EncodeSystem(depPayload, ghcomment.TypeSystemDeprecation)
	depBody, err := ghcomment.Marshal(depEnv)
	if err != nil {
		return fmt.Errorf("dedup: encode system_deprecation envelope: %w", err)
	}
	if _, err := d.GW.CreateComment(ctx, loser.Number, depBody); err != nil {
		return fmt.Errorf("dedup: post system_deprecation comment on #%d: %w", loser.Number, err)
	}

	refPayload, _ := json.Marshal(map[string]string{
		"status":           "merged_reference",
		"merged_object_id": loserID,
		"reason":           string(reason),
	})
	refEnv := ghcomment.EncodeSystem(refPayload, ghcomment.TypeSystemReference)
	refBody, err := ghcomment.Marshal(refEnv)
	if err != nil {
		return fmt.Errorf("dedup: encode system_reference envelope: %w", err)
	}
	if _, err := d.GW.CreateComment(ctx, winner.Number, refBody); err != nil {
		return fmt.Errorf("dedup: post system_reference comment on #%d: %w", winner.Number, err)
	}

	if d.Process != nil {
		if _, err := d.Process.Process(ctx, winner.Number); err != nil {
			return fmt.Errorf("dedup: process winner #%d after merge: %w", winner.Number, err)
		}
	}

	d.Logger.Info("dedup: deprecated", "loser", loser.Number, "winner", winner.Number, "reason", reason)
	return nil
}

// Deduplicate collapses every issue in group to one winner: the issue
// numbered preferredWinner if it is nonzero and present in group;
// otherwise, when preferredWinner is zero, the canonical-labeled issue
// if one is present; otherwise the first issue in group, i.e. the
// lowest issue number (oldest), matching canonicalize.py's default. A
// nonzero preferredWinner that is not in group falls back to the first
// issue without consulting canonical labels. group must already be
// sorted by issue number ascending; callers normally obtain it from
// FindDuplicates.
func (d *Deduplicator) Deduplicate(ctx context.Context, group []gateway.Issue, preferredWinner int) error {
	if len(group) < 2 {
		return nil
	}

	winner := group[0]
	for _, iss := range group {
		if iss.Number == preferredWinner {
			winner = iss
			break
		}
	}
	if preferredWinner == 0 {
		for _, iss := range group {
			if ghlabel.HasLabel(iss.Labels, ghlabel.CanonicalLabel) {
				winner = iss
				break
			}
		}
	}

	for _, loser := range group {
		if loser.Number == winner.Number {
			continue
		}
		if err := d.Deprecate(ctx, loser, winner, ReasonDuplicate); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileSummary reports what a full sweep did.
type ReconcileSummary struct {
	GroupsProcessed int
	IssuesDeprecated int
}

// Reconcile sweeps every stored object, finds uid groups with more
// than one live anchor, and deduplicates each -- the canonicalize.py
// "process all duplicates" batch mode.
func (d *Deduplicator) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	groups, err := d.FindDuplicates(ctx)
	if err != nil {
		return ReconcileSummary{}, err
	}

	var summary ReconcileSummary
	for id, group := range groups {
		if err := d.Deduplicate(ctx, group, 0); err != nil {
			return summary, fmt.Errorf("dedup: reconcile uid %q: %w", id, err)
		}
		summary.GroupsProcessed++
		summary.IssuesDeprecated += len(group) - 1
	}
	return summary, nil
}
