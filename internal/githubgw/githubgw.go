// Package githubgw implements gateway.RepoGateway against the real
// GitHub REST API via google/go-github, the concrete transport the
// teacher's internal/github package played (hand-rolled HTTP there;
// here the go-github client, matching the DOMAIN STACK wiring
// decision). Transient failures are retried with cenkalti/backoff,
// the same exponential-backoff-with-jitter shape the teacher's
// doRequest rate-limit branch implements by hand.
package githubgw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v57/github"

	"github.com/dmarx/gh-store/internal/gateway"
)

// RetryConfig controls the backoff policy wrapping every API call,
// configurable via store.retries.* (spec.md section 6).
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig is the policy used for any field a caller leaves
// zero. The CLI passes store.DefaultConfig's retry values (3 attempts,
// factor 2) through RetriesConfig.ToGatewayConfig, which override these.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, InitialBackoff: 500 * time.Millisecond, BackoffFactor: 2.0}
}

// Gateway is the production gateway.RepoGateway.
type Gateway struct {
	Client *github.Client
	Owner  string
	Repo   string
	Retry  RetryConfig
	Logger *slog.Logger
}

// New constructs a Gateway. logger may be nil.
func New(client *github.Client, owner, repo string, retry RetryConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{Client: client, Owner: owner, Repo: repo, Retry: retry, Logger: logger}
}

// Repository returns "<owner>/<repo>".
func (g *Gateway) Repository() string {
	return g.Owner + "/" + g.Repo
}

func (g *Gateway) backoffPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.Retry.InitialBackoff
	b.Multiplier = g.Retry.BackoffFactor
	// WithMaxRetries counts retries after the first call, so MaxAttempts
	// total calls means MaxAttempts-1 retries.
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts(g.Retry.MaxAttempts)-1)), ctx)
}

func maxAttempts(n int) int {
	if n <= 0 {
		return DefaultRetryConfig().MaxAttempts
	}
	return n
}

// retry runs fn, retrying transient errors (rate limits, 5xx) with
// exponential backoff and giving up immediately on anything else.
func (g *Gateway) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		g.Logger.Warn("githubgw: retrying after transient error", "op", op, "attempt", attempt, "error", err)
		return err
	}, g.backoffPolicy(ctx))
	if err != nil {
		return fmt.Errorf("githubgw: %s: %w", op, err)
	}
	return nil
}

func isPermanent(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return false
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func (g *Gateway) GetOwner(ctx context.Context) (gateway.Owner, error) {
	var repo *github.Repository
	err := g.retry(ctx, "GetOwner", func() error {
		var innerErr error
		repo, _, innerErr = g.Client.Repositories.Get(ctx, g.Owner, g.Repo)
		return innerErr
	})
	if err != nil {
		return gateway.Owner{}, err
	}

	kind := gateway.OwnerUser
	if repo.GetOwner().GetType() == "Organization" {
		kind = gateway.OwnerOrganization
	}
	return gateway.Owner{Login: repo.GetOwner().GetLogin(), Kind: kind}, nil
}

func (g *Gateway) GetFile(ctx context.Context, path string) ([]byte, error) {
	var content *github.RepositoryContent
	err := g.retry(ctx, "GetFile", func() error {
		var innerErr error
		content, _, _, innerErr = g.Client.Repositories.GetContents(ctx, g.Owner, g.Repo, path, nil)
		return innerErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, gateway.ErrNotFound
		}
		return nil, err
	}
	decoded, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("githubgw: decode file content %q: %w", path, err)
	}
	return []byte(decoded), nil
}

func (g *Gateway) ListIssues(ctx context.Context, opts gateway.ListOptions) ([]gateway.Issue, error) {
	ghOpts := &github.IssueListByRepoOptions{
		Labels: opts.Labels,
		State:  string(stateOrAll(opts.State)),
		Since:  opts.Since,
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}

	var out []gateway.Issue
	for page := 1; ; page++ {
		ghOpts.Page = page
		var ghIssues []*github.Issue
		var resp *github.Response
		err := g.retry(ctx, "ListIssues", func() error {
			var innerErr error
			ghIssues, resp, innerErr = g.Client.Issues.ListByRepo(ctx, g.Owner, g.Repo, ghOpts)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		for _, iss := range ghIssues {
			if iss.IsPullRequest() {
				continue
			}
			out = append(out, toIssue(iss))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
	}
	return out, nil
}

func stateOrAll(s gateway.IssueState) gateway.IssueState {
	if s == "" {
		return gateway.StateAll
	}
	return s
}

func (g *Gateway) GetIssue(ctx context.Context, number int) (gateway.Issue, error) {
	var ghIssue *github.Issue
	err := g.retry(ctx, "GetIssue", func() error {
		var innerErr error
		ghIssue, _, innerErr = g.Client.Issues.Get(ctx, g.Owner, g.Repo, number)
		return innerErr
	})
	if err != nil {
		if isNotFound(err) {
			return gateway.Issue{}, gateway.ErrNotFound
		}
		return gateway.Issue{}, err
	}
	return toIssue(ghIssue), nil
}

func (g *Gateway) CreateIssue(ctx context.Context, title, body string, labels []string) (gateway.Issue, error) {
	req := &github.IssueRequest{Title: &title, Body: &body, Labels: &labels}
	var ghIssue *github.Issue
	err := g.retry(ctx, "CreateIssue", func() error {
		var innerErr error
		ghIssue, _, innerErr = g.Client.Issues.Create(ctx, g.Owner, g.Repo, req)
		return innerErr
	})
	if err != nil {
		return gateway.Issue{}, err
	}
	return toIssue(ghIssue), nil
}

func (g *Gateway) EditIssue(ctx context.Context, number int, body *string, state *gateway.IssueState, labels []string) (gateway.Issue, error) {
	req := &github.IssueRequest{Body: body}
	if state != nil {
		s := string(*state)
		req.State = &s
	}
	if labels != nil {
		req.Labels = &labels
	}

	var ghIssue *github.Issue
	err := g.retry(ctx, "EditIssue", func() error {
		var innerErr error
		ghIssue, _, innerErr = g.Client.Issues.Edit(ctx, g.Owner, g.Repo, number, req)
		return innerErr
	})
	if err != nil {
		if isNotFound(err) {
			return gateway.Issue{}, gateway.ErrNotFound
		}
		return gateway.Issue{}, err
	}
	return toIssue(ghIssue), nil
}

func (g *Gateway) CreateLabel(ctx context.Context, name, color, description string) error {
	return g.retry(ctx, "CreateLabel", func() error {
		_, _, err := g.Client.Issues.CreateLabel(ctx, g.Owner, g.Repo, &github.Label{
			Name:        &name,
			Color:       &color,
			Description: &description,
		})
		// Creating a label that already exists is a 422 from GitHub;
		// treat it as success since EnsureVocabulary/EnsureLabels
		// already check existence first, but concurrent callers can
		// still race.
		if err != nil {
			var ghErr *github.ErrorResponse
			if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity {
				return nil
			}
		}
		return err
	})
}

func (g *Gateway) ListLabels(ctx context.Context) ([]string, error) {
	var out []string
	opts := &github.ListOptions{PerPage: 100}
	for page := 1; ; page++ {
		opts.Page = page
		var ghLabels []*github.Label
		var resp *github.Response
		err := g.retry(ctx, "ListLabels", func() error {
			var innerErr error
			ghLabels, resp, innerErr = g.Client.Issues.ListLabels(ctx, g.Owner, g.Repo, opts)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		for _, l := range ghLabels {
			out = append(out, l.GetName())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
	}
	return out, nil
}

func (g *Gateway) AddLabels(ctx context.Context, number int, labels []string) error {
	return g.retry(ctx, "AddLabels", func() error {
		_, _, err := g.Client.Issues.AddLabelsToIssue(ctx, g.Owner, g.Repo, number, labels)
		return err
	})
}

func (g *Gateway) RemoveLabel(ctx context.Context, number int, label string) error {
	err := g.retry(ctx, "RemoveLabel", func() error {
		_, err := g.Client.Issues.RemoveLabelForIssue(ctx, g.Owner, g.Repo, number, label)
		return err
	})
	if err != nil && isNotFound(err) {
		// The label was already absent; removing an absent label is a
		// no-op for our callers (Archive, Deprecate).
		return nil
	}
	return err
}

func (g *Gateway) ListComments(ctx context.Context, number int) ([]gateway.Comment, error) {
	var out []gateway.Comment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for page := 1; ; page++ {
		opts.Page = page
		var ghComments []*github.IssueComment
		var resp *github.Response
		err := g.retry(ctx, "ListComments", func() error {
			var innerErr error
			ghComments, resp, innerErr = g.Client.Issues.ListComments(ctx, g.Owner, g.Repo, number, opts)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		for _, c := range ghComments {
			out = append(out, toComment(c))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
	}
	return out, nil
}

func (g *Gateway) CreateComment(ctx context.Context, number int, body string) (gateway.Comment, error) {
	var ghComment *github.IssueComment
	err := g.retry(ctx, "CreateComment", func() error {
		var innerErr error
		ghComment, _, innerErr = g.Client.Issues.CreateComment(ctx, g.Owner, g.Repo, number, &github.IssueComment{Body: &body})
		return innerErr
	})
	if err != nil {
		return gateway.Comment{}, err
	}
	return toComment(ghComment), nil
}

func (g *Gateway) ListReactions(ctx context.Context, commentID int64) ([]gateway.Reaction, error) {
	var out []gateway.Reaction
	opts := &github.ListOptions{PerPage: 100}
	for page := 1; ; page++ {
		opts.Page = page
		var ghReactions []*github.Reaction
		var resp *github.Response
		err := g.retry(ctx, "ListReactions", func() error {
			var innerErr error
			ghReactions, resp, innerErr = g.Client.Reactions.ListIssueCommentReactions(ctx, g.Owner, g.Repo, commentID, opts)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		for _, r := range ghReactions {
			out = append(out, gateway.Reaction{Content: r.GetContent()})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
	}
	return out, nil
}

func (g *Gateway) CreateReaction(ctx context.Context, commentID int64, content string) error {
	return g.retry(ctx, "CreateReaction", func() error {
		_, _, err := g.Client.Reactions.CreateIssueCommentReaction(ctx, g.Owner, g.Repo, commentID, content)
		return err
	})
}

func (g *Gateway) GetTeamMembers(ctx context.Context, org, team string) ([]string, error) {
	var out []string
	opts := &github.TeamListTeamMembersOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for page := 1; ; page++ {
		opts.Page = page
		var members []*github.User
		var resp *github.Response
		err := g.retry(ctx, "GetTeamMembers", func() error {
			var innerErr error
			members, resp, innerErr = g.Client.Teams.ListTeamMembersBySlug(ctx, org, team, opts)
			return innerErr
		})
		if err != nil {
			if isNotFound(err) {
				return nil, gateway.ErrNotFound
			}
			return nil, err
		}
		for _, m := range members {
			out = append(out, m.GetLogin())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
	}
	return out, nil
}

func toIssue(ghIssue *github.Issue) gateway.Issue {
	labels := make([]string, 0, len(ghIssue.Labels))
	for _, l := range ghIssue.Labels {
		labels = append(labels, l.GetName())
	}
	return gateway.Issue{
		Number:    ghIssue.GetNumber(),
		Title:     ghIssue.GetTitle(),
		Body:      ghIssue.GetBody(),
		State:     gateway.IssueState(ghIssue.GetState()),
		CreatedAt: ghIssue.GetCreatedAt().Time,
		UpdatedAt: ghIssue.GetUpdatedAt().Time,
		Labels:    labels,
		Author:    gateway.User{Login: ghIssue.GetUser().GetLogin()},
	}
}

func toComment(c *github.IssueComment) gateway.Comment {
	return gateway.Comment{
		ID:        c.GetID(),
		Body:      c.GetBody(),
		CreatedAt: c.GetCreatedAt().Time,
		Author:    gateway.User{Login: c.GetUser().GetLogin()},
	}
}

var _ gateway.RepoGateway = (*Gateway)(nil)
