// Package store implements the Store façade (spec.md section 5): the
// single entry point wiring IssueStore, UpdateProcessor, AliasResolver,
// Deduplicator and AccessControl into the public operations a caller
// (the CLI, or any embedding program) uses.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dmarx/gh-store/internal/access"
	"github.com/dmarx/gh-store/internal/alias"
	"github.com/dmarx/gh-store/internal/dedup"
	"github.com/dmarx/gh-store/internal/gateway"
	"github.com/dmarx/gh-store/internal/ghcomment"
	"github.com/dmarx/gh-store/internal/ghlabel"
	"github.com/dmarx/gh-store/internal/issuestore"
	"github.com/dmarx/gh-store/internal/processor"
	"github.com/dmarx/gh-store/internal/storeerrors"
)

// Store is the façade over every core component, built from a single
// RepoGateway and Config.
type Store struct {
	GW      gateway.RepoGateway
	Codec   ghlabel.Codec
	Issues  *issuestore.Store
	Access  *access.Control
	Process *processor.Processor
	Alias   *alias.Resolver
	Dedup   *dedup.Deduplicator
	Metrics *Metrics
	Logger  *slog.Logger
}

// New wires a Store from a gateway and a loaded Config. metrics may be
// nil, in which case NoopMetrics() is used. logger may be nil.
func New(gw gateway.RepoGateway, cfg Config, metrics *Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}

	codec := ghlabel.NewCodec(cfg.Store.BaseLabel, cfg.Store.UIDPrefix)
	issues := issuestore.New(gw, codec, logger)
	ac := access.New(gw, logger)
	proc := processor.New(gw, issues, ac, codec, logger)
	proc.Reactions = processor.Reactions{
		Processed:    orDefault(cfg.Store.Reactions.Processed, "+1"),
		InitialState: orDefault(cfg.Store.Reactions.InitialState, "rocket"),
	}

	return &Store{
		GW:      gw,
		Codec:   codec,
		Issues:  issues,
		Access:  ac,
		Process: proc,
		Alias:   alias.New(gw, codec, logger),
		Dedup:   dedup.New(gw, codec, proc, logger),
		Metrics: metrics,
		Logger:  logger,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Init performs one-time repository setup: installs the base label
// grammar if missing. Safe to call on every startup.
func (s *Store) Init(ctx context.Context) error {
	return s.Codec.EnsureVocabulary(ctx, s.GW)
}

// Create stores a brand-new object under id.
func (s *Store) Create(ctx context.Context, id string, data json.RawMessage) (issuestore.StoredObject, error) {
	obj, err := s.Issues.CreateAnchor(ctx, id, data)
	if err != nil {
		s.Metrics.incError(ctx)
		return issuestore.StoredObject{}, err
	}
	s.Metrics.incCreate(ctx)
	return obj, nil
}

// resolveToCanonical finds id's anchor and, if it is an alias, follows
// it to the canonical issue -- every read/write path funnels through
// here so a caller never has to know whether id names an alias.
func (s *Store) resolveToCanonical(ctx context.Context, id string) (gateway.Issue, error) {
	issue, err := s.Issues.FindAnchor(ctx, id)
	if err != nil {
		return gateway.Issue{}, err
	}
	if !alias.IsAlias(issue) {
		return issue, nil
	}
	return s.Alias.ResolveCanonical(ctx, issue.Number)
}

// Get reads id's last persisted state. update -> get is not
// immediately consistent: a pending update sits unapplied in the
// comment log until a process cycle runs, and Get returns the last
// persisted body regardless -- never the pending envelope, and never
// an error on that account. Callers that need the latest state should
// call ProcessUpdates first.
func (s *Store) Get(ctx context.Context, id string) (issuestore.StoredObject, error) {
	issue, err := s.resolveToCanonical(ctx, id)
	if err != nil {
		s.Metrics.incError(ctx)
		return issuestore.StoredObject{}, err
	}
	obj, err := s.Issues.ReadObject(ctx, issue)
	if err != nil {
		s.Metrics.incError(ctx)
		return issuestore.StoredObject{}, err
	}
	s.Metrics.incGet(ctx)
	return obj, nil
}

// Update posts a new update comment against id's canonical anchor and
// reopens it for processing. The write is not applied to the anchor
// body until ProcessUpdates runs -- matching spec.md's asynchronous
// update model. If the anchor is already open -- meaning a prior
// update is still waiting on a process cycle -- Update refuses with
// ErrConcurrentUpdate rather than posting another comment on top of
// the unprocessed one.
func (s *Store) Update(ctx context.Context, id string, data json.RawMessage, mode ghcomment.UpdateMode) error {
	issue, err := s.resolveToCanonical(ctx, id)
	if err != nil {
		s.Metrics.incError(ctx)
		return err
	}
	if issue.State == gateway.StateOpen {
		return storeerrors.Wrap("Update", id, storeerrors.ErrConcurrentUpdate)
	}

	env := ghcomment.Encode(data, mode, ghcomment.TypeNone, ghcomment.ClientVersion)
	body, err := ghcomment.Marshal(env)
	if err != nil {
		s.Metrics.incError(ctx)
		return fmt.Errorf("store: encode update envelope: %w", err)
	}
	if _, err := s.GW.CreateComment(ctx, issue.Number, body); err != nil {
		s.Metrics.incError(ctx)
		return fmt.Errorf("store: post update comment: %w", err)
	}
	if err := s.Issues.Reopen(ctx, issue.Number); err != nil {
		s.Metrics.incError(ctx)
		return err
	}
	s.Metrics.incUpdate(ctx)
	return nil
}

// ProcessUpdates runs one process cycle against id's anchor, applying
// every unprocessed update in timestamp order.
func (s *Store) ProcessUpdates(ctx context.Context, id string) (issuestore.StoredObject, error) {
	issue, err := s.Issues.FindAnchor(ctx, id)
	if err != nil {
		s.Metrics.incError(ctx)
		return issuestore.StoredObject{}, err
	}
	obj, err := s.Process.Process(ctx, issue.Number)
	if err != nil {
		s.Metrics.incError(ctx)
		return issuestore.StoredObject{}, err
	}
	s.Metrics.incProcessed(ctx, 1)
	return obj, nil
}

// ProcessAll runs a process cycle over every open non-alias anchor,
// the polling entry point for a scheduled "catch up on updates" run.
func (s *Store) ProcessAll(ctx context.Context) ([]issuestore.StoredObject, error) {
	issues, err := s.GW.ListIssues(ctx, gateway.ListOptions{Labels: []string{s.Codec.BaseLabelOrDefault()}, State: gateway.StateOpen})
	if err != nil {
		s.Metrics.incError(ctx)
		return nil, fmt.Errorf("store: list open anchors: %w", err)
	}

	var out []issuestore.StoredObject
	for _, issue := range issues {
		if alias.IsAlias(issue) {
			continue // processed as part of its canonical's cycle
		}
		obj, err := s.Process.Process(ctx, issue.Number)
		if err != nil {
			s.Logger.Warn("store: process cycle failed, continuing with remaining anchors", "issue", issue.Number, "error", err)
			s.Metrics.incError(ctx)
			continue
		}
		s.Metrics.incProcessed(ctx, 1)
		out = append(out, obj)
	}
	return out, nil
}

// Delete soft-deletes id (spec.md's Archive semantics): history is
// retained, but id no longer resolves via Get/List.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.Issues.Archive(ctx, id); err != nil {
		s.Metrics.incError(ctx)
		return err
	}
	return nil
}

// List returns every live (non-archived) object, aliases excluded.
func (s *Store) List(ctx context.Context) ([]issuestore.StoredObject, error) {
	issues, err := s.GW.ListIssues(ctx, gateway.ListOptions{Labels: []string{s.Codec.BaseLabelOrDefault()}, State: gateway.StateAll})
	if err != nil {
		s.Metrics.incError(ctx)
		return nil, fmt.Errorf("store: list objects: %w", err)
	}
	return s.readAllNonAlias(ctx, issues)
}

// ListUpdatedSince returns every live object whose computed UpdatedAt
// is at or after since. The tracker's own "since" filter covers
// comment activity too, so we must re-check the computed timestamp
// after fetching each candidate -- an issue can be returned by the
// tracker's filter (e.g. a relabel) without its *effective* update
// time having advanced.
func (s *Store) ListUpdatedSince(ctx context.Context, since time.Time) ([]issuestore.StoredObject, error) {
	issues, err := s.GW.ListIssues(ctx, gateway.ListOptions{Labels: []string{s.Codec.BaseLabelOrDefault()}, State: gateway.StateAll, Since: since})
	if err != nil {
		s.Metrics.incError(ctx)
		return nil, fmt.Errorf("store: list objects updated since %s: %w", since, err)
	}
	all, err := s.readAllNonAlias(ctx, issues)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, obj := range all {
		if !obj.Meta.UpdatedAt.Before(since) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (s *Store) readAllNonAlias(ctx context.Context, issues []gateway.Issue) ([]issuestore.StoredObject, error) {
	var out []issuestore.StoredObject
	for _, issue := range issues {
		if ghlabel.HasLabel(issue.Labels, ghlabel.ArchivedLabel) || alias.IsAlias(issue) {
			continue
		}
		obj, err := s.Issues.ReadObject(ctx, issue)
		if err != nil {
			s.Logger.Warn("store: skipping object that failed to read", "issue", issue.Number, "error", err)
			continue
		}
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.IssueNumber < out[j].Meta.IssueNumber })
	return out, nil
}

// History returns id's full update history, redirecting through an
// alias to its canonical anchor first.
func (s *Store) History(ctx context.Context, id string) ([]issuestore.HistoryEntry, error) {
	issue, err := s.resolveToCanonical(ctx, id)
	if err != nil {
		s.Metrics.incError(ctx)
		return nil, err
	}
	return s.Issues.History(ctx, issue.Number)
}

// CreateAlias makes aliasID an alias of canonicalID.
func (s *Store) CreateAlias(ctx context.Context, canonicalID, aliasID string) error {
	canonical, err := s.Issues.FindAnchor(ctx, canonicalID)
	if err != nil {
		s.Metrics.incError(ctx)
		return fmt.Errorf("store: find canonical anchor %q: %w", canonicalID, err)
	}
	aliasIssue, err := s.Issues.FindAnchor(ctx, aliasID)
	if err != nil {
		s.Metrics.incError(ctx)
		return fmt.Errorf("store: find alias anchor %q: %w", aliasID, err)
	}
	if err := s.Alias.CreateAlias(ctx, canonical, aliasIssue); err != nil {
		s.Metrics.incError(ctx)
		return err
	}
	return nil
}

// ListAliases returns every alias pointing at canonicalID.
func (s *Store) ListAliases(ctx context.Context, canonicalID string) ([]gateway.Issue, error) {
	canonical, err := s.Issues.FindAnchor(ctx, canonicalID)
	if err != nil {
		return nil, fmt.Errorf("store: find canonical anchor %q: %w", canonicalID, err)
	}
	return s.Alias.FindAliases(ctx, canonical.Number)
}

// Reconcile sweeps the repository for duplicate anchors sharing a
// uid and deduplicates each group.
func (s *Store) Reconcile(ctx context.Context) (dedup.ReconcileSummary, error) {
	summary, err := s.Dedup.Reconcile(ctx)
	if err != nil {
		s.Metrics.incError(ctx)
		return summary, err
	}
	s.Metrics.incDeprecated(ctx, int64(summary.IssuesDeprecated))
	return summary, nil
}

// SnapshotMeta is the "meta" object nested under each entry of a
// Snapshot's "objects" map (spec.md's snapshot file format).
type SnapshotMeta struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// SnapshotEntry is one object's entry in a Snapshot.
type SnapshotEntry struct {
	Data json.RawMessage `json:"data"`
	Meta SnapshotMeta    `json:"meta"`
}

// Snapshot is the repository-wide export format spec.md section 6
// defines: { snapshot_time, repository, objects: { id -> {data,meta} } }.
type Snapshot struct {
	SnapshotTime time.Time                `json:"snapshot_time"`
	Repository   string                   `json:"repository"`
	Objects      map[string]SnapshotEntry `json:"objects"`
}

func snapshotEntry(obj issuestore.StoredObject) SnapshotEntry {
	return SnapshotEntry{
		Data: obj.Data,
		Meta: SnapshotMeta{
			CreatedAt: obj.Meta.CreatedAt,
			UpdatedAt: obj.Meta.UpdatedAt,
			Version:   obj.Meta.Version,
		},
	}
}

// Snapshot exports every live object in the repository as of now.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	objs, err := s.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		SnapshotTime: time.Now().UTC(),
		Repository:   s.GW.Repository(),
		Objects:      make(map[string]SnapshotEntry, len(objs)),
	}
	for _, obj := range objs {
		snap.Objects[obj.Meta.ObjectID] = snapshotEntry(obj)
	}
	return snap, nil
}

// UpdateSnapshot rewrites prev's snapshot_time to now and replaces or
// inserts an entry for every object listUpdatedSince(prev.SnapshotTime)
// returns, leaving every other entry untouched.
func (s *Store) UpdateSnapshot(ctx context.Context, prev Snapshot) (Snapshot, error) {
	changed, err := s.ListUpdatedSince(ctx, prev.SnapshotTime)
	if err != nil {
		return Snapshot{}, err
	}

	snap := prev
	if snap.Objects == nil {
		snap.Objects = make(map[string]SnapshotEntry, len(changed))
	}
	if snap.Repository == "" {
		snap.Repository = s.GW.Repository()
	}
	for _, obj := range changed {
		snap.Objects[obj.Meta.ObjectID] = snapshotEntry(obj)
	}
	snap.SnapshotTime = time.Now().UTC()
	return snap, nil
}
