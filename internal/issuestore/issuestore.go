// Package issuestore implements the IssueStore component (spec.md
// section 4.4): CRUD over a single issue as the anchor of one stored
// object.
package issuestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dmarx/gh-store/internal/ghcomment"
	"github.com/dmarx/gh-store/internal/ghlabel"
	"github.com/dmarx/gh-store/internal/gateway"
	"github.com/dmarx/gh-store/internal/storeerrors"
)

// ObjectMeta is spec.md section 3's ObjectMeta entity.
type ObjectMeta struct {
	ObjectID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
	IssueNumber int
}

// StoredObject pairs the computed metadata with the caller's JSON
// payload.
type StoredObject struct {
	Meta ObjectMeta
	Data json.RawMessage
}

// HistoryEntry is one decoded comment on an anchor, in chronological
// order.
type HistoryEntry struct {
	Timestamp time.Time
	Type      ghcomment.EnvelopeType
	Data      json.RawMessage
	CommentID int64
	Metadata  ghcomment.Meta
}

const defaultLabelColor = "ededed"

// Store implements anchor CRUD against a RepoGateway.
type Store struct {
	GW     gateway.RepoGateway
	Codec  ghlabel.Codec
	Logger *slog.Logger
}

// New constructs an issuestore.Store. logger may be nil.
func New(gw gateway.RepoGateway, codec ghlabel.Codec, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{GW: gw, Codec: codec, Logger: logger}
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// EnsureLabels creates the base and uid labels if they are missing.
// CreateAnchor calls this for the two labels a new anchor needs;
// ghlabel.Codec.EnsureVocabulary (see SPEC_FULL.md) extends
// this to the full grammar at store-initialization time.
func (s *Store) EnsureLabels(ctx context.Context, labels []string) error {
	existing, err := s.GW.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("issuestore: list labels: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, l := range existing {
		have[l] = true
	}
	for _, want := range labels {
		if have[want] {
			continue
		}
		if err := s.GW.CreateLabel(ctx, want, defaultLabelColor, ""); err != nil {
			return fmt.Errorf("issuestore: create label %q: %w", want, err)
		}
	}
	return nil
}

// CreateAnchor opens a new anchor issue for id, posts an already-processed
// initial-state comment, and closes the issue.
func (s *Store) CreateAnchor(ctx context.Context, id string, data json.RawMessage) (StoredObject, error) {
	if _, err := s.FindAnchor(ctx, id); err == nil {
		return StoredObject{}, storeerrors.Wrap("CreateAnchor", id, storeerrors.ErrDuplicateUID)
	}

	labels := s.Codec.QueryLabels(id)
	if err := s.EnsureLabels(ctx, labels); err != nil {
		return StoredObject{}, err
	}

	body, err := prettyJSON(data)
	if err != nil {
		return StoredObject{}, fmt.Errorf("issuestore: encode initial data: %w", err)
	}

	issue, err := s.GW.CreateIssue(ctx, "Stored Object: "+id, body, labels)
	if err != nil {
		return StoredObject{}, fmt.Errorf("issuestore: create anchor issue: %w", err)
	}

	env := ghcomment.Encode(data, ghcomment.ModeReplace, ghcomment.TypeInitialState, ghcomment.ClientVersion)
	envBody, err := ghcomment.Marshal(env)
	if err != nil {
		return StoredObject{}, fmt.Errorf("issuestore: encode initial-state envelope: %w", err)
	}
	comment, err := s.GW.CreateComment(ctx, issue.Number, envBody)
	if err != nil {
		return StoredObject{}, fmt.Errorf("issuestore: post initial-state comment: %w", err)
	}

	if err := s.GW.CreateReaction(ctx, comment.ID, "+1"); err != nil {
		s.logger().Warn("issuestore: failed to mark initial-state comment processed", "id", id, "error", err)
	}
	if err := s.GW.CreateReaction(ctx, comment.ID, "rocket"); err != nil {
		s.logger().Warn("issuestore: failed to mark initial-state comment", "id", id, "error", err)
	}

	closed := gateway.StateClosed
	issue, err = s.GW.EditIssue(ctx, issue.Number, nil, &closed, nil)
	if err != nil {
		return StoredObject{}, fmt.Errorf("issuestore: close anchor issue: %w", err)
	}

	return StoredObject{
		Meta: ObjectMeta{
			ObjectID:    id,
			CreatedAt:   issue.CreatedAt,
			UpdatedAt:   issue.CreatedAt,
			Version:     1,
			IssueNumber: issue.Number,
		},
		Data: data,
	}, nil
}

// FindAnchor locates the anchor issue for id: closed-first with an
// all-state fallback (spec.md's Open Question is resolved this way;
// see DESIGN.md). If more than one non-archived anchor carries the
// uid, a canonical-labeled one wins; otherwise the lowest issue number
// does, and a duplication warning is logged.
func (s *Store) FindAnchor(ctx context.Context, id string) (gateway.Issue, error) {
	labels := s.Codec.QueryLabels(id)

	issues, err := s.GW.ListIssues(ctx, gateway.ListOptions{Labels: labels, State: gateway.StateClosed})
	if err != nil {
		return gateway.Issue{}, fmt.Errorf("issuestore: list closed anchors: %w", err)
	}
	if len(issues) == 0 {
		issues, err = s.GW.ListIssues(ctx, gateway.ListOptions{Labels: labels, State: gateway.StateAll})
		if err != nil {
			return gateway.Issue{}, fmt.Errorf("issuestore: list all anchors: %w", err)
		}
	}

	issues = filterNonArchived(issues)
	if len(issues) == 0 {
		return gateway.Issue{}, storeerrors.Wrap("FindAnchor", id, storeerrors.ErrObjectNotFound)
	}
	if len(issues) == 1 {
		return issues[0], nil
	}

	for _, iss := range issues {
		if ghlabel.HasLabel(iss.Labels, ghlabel.CanonicalLabel) {
			return iss, nil
		}
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })
	s.logger().Warn("issuestore: multiple anchors share a uid, picking lowest issue number",
		"id", id, "count", len(issues), "chosen", issues[0].Number)
	return issues[0], nil
}

func filterNonArchived(issues []gateway.Issue) []gateway.Issue {
	out := issues[:0:0]
	for _, iss := range issues {
		if !ghlabel.HasLabel(iss.Labels, ghlabel.ArchivedLabel) {
			out = append(out, iss)
		}
	}
	return out
}

// ReadObject parses the anchor's current body and derives its
// metadata from the comment count on the issue.
func (s *Store) ReadObject(ctx context.Context, issue gateway.Issue) (StoredObject, error) {
	id, err := s.Codec.ExtractUID(issue.Labels)
	if err != nil {
		return StoredObject{}, fmt.Errorf("issuestore: %w", err)
	}

	comments, err := s.GW.ListComments(ctx, issue.Number)
	if err != nil {
		return StoredObject{}, fmt.Errorf("issuestore: list comments: %w", err)
	}

	return StoredObject{
		Meta: ObjectMeta{
			ObjectID:    id,
			CreatedAt:   issue.CreatedAt,
			UpdatedAt:   issue.UpdatedAt,
			Version:     len(comments) + 1,
			IssueNumber: issue.Number,
		},
		Data: json.RawMessage(issue.Body),
	}, nil
}

// WriteBody overwrites the anchor's body and closes the issue --
// process() calling this is what makes a process cycle quiescent
// again.
func (s *Store) WriteBody(ctx context.Context, issueNumber int, data json.RawMessage) error {
	body, err := prettyJSON(data)
	if err != nil {
		return fmt.Errorf("issuestore: encode body: %w", err)
	}
	closed := gateway.StateClosed
	_, err = s.GW.EditIssue(ctx, issueNumber, &body, &closed, nil)
	if err != nil {
		return fmt.Errorf("issuestore: write body: %w", err)
	}
	return nil
}

// Reopen sets the anchor to open, signaling "has unprocessed updates,
// please process" (spec.md section 3, Anchor Issue).
func (s *Store) Reopen(ctx context.Context, issueNumber int) error {
	open := gateway.StateOpen
	if _, err := s.GW.EditIssue(ctx, issueNumber, nil, &open, nil); err != nil {
		return fmt.Errorf("issuestore: reopen anchor: %w", err)
	}
	return nil
}

// Archive soft-deletes id: adds "archived", removes the base label,
// and closes the issue. History remains queryable.
func (s *Store) Archive(ctx context.Context, id string) error {
	issue, err := s.FindAnchor(ctx, id)
	if err != nil {
		return err
	}
	if err := s.GW.AddLabels(ctx, issue.Number, []string{ghlabel.ArchivedLabel}); err != nil {
		return fmt.Errorf("issuestore: add archived label: %w", err)
	}
	if err := s.GW.RemoveLabel(ctx, issue.Number, s.Codec.BaseLabelOrDefault()); err != nil {
		s.logger().Warn("issuestore: failed to remove base label while archiving", "id", id, "error", err)
	}
	closed := gateway.StateClosed
	if _, err := s.GW.EditIssue(ctx, issue.Number, nil, &closed, nil); err != nil {
		return fmt.Errorf("issuestore: close archived anchor: %w", err)
	}
	return nil
}

// History decodes every comment on issue issueNumber in chronological
// order, skipping malformed comments. It does not follow aliases: the
// caller (store.Store.History) redirects an alias to its canonical
// issue number before calling History.
func (s *Store) History(ctx context.Context, issueNumber int) ([]HistoryEntry, error) {
	comments, err := s.GW.ListComments(ctx, issueNumber)
	if err != nil {
		return nil, fmt.Errorf("issuestore: list comments for history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(comments))
	for _, c := range comments {
		parsed, err := ghcomment.Decode([]byte(c.Body), c.CreatedAt, c.ID)
		if err != nil {
			s.logger().Warn("issuestore: skipping malformed comment in history", "comment_id", c.ID, "error", err)
			continue
		}
		entries = append(entries, HistoryEntry{
			Timestamp: ghcomment.EffectiveTimestamp(parsed),
			Type:      parsed.Type,
			Data:      parsed.Data,
			CommentID: parsed.CommentID,
			Metadata:  parsed.Meta,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	return entries, nil
}

func prettyJSON(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
