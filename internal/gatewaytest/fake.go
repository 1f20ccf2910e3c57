// Package gatewaytest provides an in-memory fake implementing
// gateway.RepoGateway, used by every core package's tests in place of
// the network. It mirrors the shape of the teacher's hand-written
// fakes in internal/storage/memory rather than a generated mock.
package gatewaytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmarx/gh-store/internal/gateway"
)

// Fake is a thread-safe in-memory tracker.
type Fake struct {
	mu sync.Mutex

	Owner gateway.Owner
	Repo  string
	Files map[string][]byte
	Teams map[string][]string

	nextIssue   int
	nextComment int64
	issues      map[int]*issueRec
	comments    map[int64]*commentRec
	labels      map[string]bool

	// Now lets tests control the clock deterministically; defaults to
	// time.Now if unset.
	Now func() time.Time
}

type issueRec struct {
	issue gateway.Issue
}

type commentRec struct {
	issueNumber int
	comment     gateway.Comment
	reactions   []gateway.Reaction
}

// New creates an empty fake tracker owned by the given login.
func New(ownerLogin string) *Fake {
	return &Fake{
		Owner:    gateway.Owner{Login: ownerLogin, Kind: gateway.OwnerOrganization},
		Repo:     "repo",
		Files:    map[string][]byte{},
		Teams:    map[string][]string{},
		issues:   map[int]*issueRec{},
		comments: map[int64]*commentRec{},
		labels:   map[string]bool{},
	}
}

func (f *Fake) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Fake) GetOwner(ctx context.Context) (gateway.Owner, error) {
	return f.Owner, nil
}

func (f *Fake) Repository() string {
	return f.Owner.Login + "/" + f.Repo
}

func (f *Fake) GetFile(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.Files[path]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return b, nil
}

func (f *Fake) ListIssues(ctx context.Context, opts gateway.ListOptions) ([]gateway.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []gateway.Issue
	for _, rec := range f.issues {
		iss := rec.issue
		if opts.State != "" && opts.State != gateway.StateAll && iss.State != opts.State {
			continue
		}
		if !hasAllLabels(iss.Labels, opts.Labels) {
			continue
		}
		if !opts.Since.IsZero() && iss.UpdatedAt.Before(opts.Since) {
			continue
		}
		out = append(out, iss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func hasAllLabels(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, l := range have {
		set[l] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func (f *Fake) GetIssue(ctx context.Context, number int) (gateway.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.issues[number]
	if !ok {
		return gateway.Issue{}, gateway.ErrNotFound
	}
	return rec.issue, nil
}

// CreateIssueAs is like CreateIssue but lets tests set the author
// (CreateIssue always attributes to the fake's configured default
// actor, "author", matching most single-actor test scenarios).
func (f *Fake) CreateIssueAs(ctx context.Context, author, title, body string, labels []string) (gateway.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextIssue++
	now := f.now()
	iss := gateway.Issue{
		Number:    f.nextIssue,
		Title:     title,
		Body:      body,
		State:     gateway.StateOpen,
		CreatedAt: now,
		UpdatedAt: now,
		Labels:    append([]string(nil), labels...),
		Author:    gateway.User{Login: author},
	}
	f.issues[iss.Number] = &issueRec{issue: iss}
	return iss, nil
}

func (f *Fake) CreateIssue(ctx context.Context, title, body string, labels []string) (gateway.Issue, error) {
	return f.CreateIssueAs(ctx, "author", title, body, labels)
}

func (f *Fake) EditIssue(ctx context.Context, number int, body *string, state *gateway.IssueState, labels []string) (gateway.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.issues[number]
	if !ok {
		return gateway.Issue{}, gateway.ErrNotFound
	}
	if body != nil {
		rec.issue.Body = *body
	}
	if state != nil {
		rec.issue.State = *state
	}
	if labels != nil {
		rec.issue.Labels = append([]string(nil), labels...)
	}
	rec.issue.UpdatedAt = f.now()
	return rec.issue, nil
}

func (f *Fake) CreateLabel(ctx context.Context, name, color, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[name] = true
	return nil
}

func (f *Fake) ListLabels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.labels))
	for l := range f.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) AddLabels(ctx context.Context, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.issues[number]
	if !ok {
		return gateway.ErrNotFound
	}
	set := make(map[string]bool)
	for _, l := range rec.issue.Labels {
		set[l] = true
	}
	for _, l := range labels {
		if !set[l] {
			rec.issue.Labels = append(rec.issue.Labels, l)
			set[l] = true
		}
		f.labels[l] = true
	}
	return nil
}

func (f *Fake) RemoveLabel(ctx context.Context, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.issues[number]
	if !ok {
		return gateway.ErrNotFound
	}
	out := rec.issue.Labels[:0:0]
	for _, l := range rec.issue.Labels {
		if l != label {
			out = append(out, l)
		}
	}
	rec.issue.Labels = out
	return nil
}

func (f *Fake) ListComments(ctx context.Context, number int) ([]gateway.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Comment
	for _, rec := range f.comments {
		if rec.issueNumber == number {
			out = append(out, rec.comment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateCommentAs is like CreateComment but lets tests set the author.
func (f *Fake) CreateCommentAs(ctx context.Context, author string, number int, body string) (gateway.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.issues[number]; !ok {
		return gateway.Comment{}, gateway.ErrNotFound
	}
	f.nextComment++
	c := gateway.Comment{ID: f.nextComment, Body: body, CreatedAt: f.now(), Author: gateway.User{Login: author}}
	f.comments[c.ID] = &commentRec{issueNumber: number, comment: c}
	return c, nil
}

func (f *Fake) CreateComment(ctx context.Context, number int, body string) (gateway.Comment, error) {
	return f.CreateCommentAs(ctx, "author", number, body)
}

func (f *Fake) ListReactions(ctx context.Context, commentID int64) ([]gateway.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.comments[commentID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return append([]gateway.Reaction(nil), rec.reactions...), nil
}

func (f *Fake) CreateReaction(ctx context.Context, commentID int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.comments[commentID]
	if !ok {
		return gateway.ErrNotFound
	}
	for _, r := range rec.reactions {
		if r.Content == content {
			return nil
		}
	}
	rec.reactions = append(rec.reactions, gateway.Reaction{Content: content})
	return nil
}

func (f *Fake) GetTeamMembers(ctx context.Context, org, team string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := org + "/" + team
	members, ok := f.Teams[key]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return members, nil
}

// HasReaction is a test helper checking whether a comment carries a
// given reaction content.
func (f *Fake) HasReaction(commentID int64, content string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.comments[commentID]
	if !ok {
		return false
	}
	for _, r := range rec.reactions {
		if r.Content == content {
			return true
		}
	}
	return false
}

// IssueCount is a test helper returning how many issues exist.
func (f *Fake) IssueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.issues)
}

// AuthorOf is a test helper returning a comment's author login.
func (f *Fake) AuthorOf(commentID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.comments[commentID]
	if !ok {
		return ""
	}
	return rec.comment.Author.Login
}

var _ gateway.RepoGateway = (*Fake)(nil)
