// Package access implements the AccessControl component (spec.md
// section 4.3): a single predicate deciding whether an author may
// create anchors or post updates, based on repository ownership and
// a CODEOWNERS file.
package access

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/dmarx/gh-store/internal/gateway"
)

// codeownersPaths are tried in order; the first that exists wins.
var codeownersPaths = []string{
	".github/CODEOWNERS",
	"docs/CODEOWNERS",
	"CODEOWNERS",
}

// Control decides author authorization, caching the owner identity
// and the codeowner set for the lifetime of the instance.
type Control struct {
	gw     gateway.RepoGateway
	logger *slog.Logger

	mu         sync.Mutex
	loaded     bool
	owner      gateway.Owner
	codeowners map[string]bool
}

// New creates a Control. logger may be nil, in which case
// slog.Default() is used.
func New(gw gateway.RepoGateway, logger *slog.Logger) *Control {
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{gw: gw, logger: logger}
}

// ClearCache discards the cached owner identity and codeowner set, so
// the next call re-fetches both. Use after a CODEOWNERS change the
// caller knows about; see spec.md's "Authorization cache coherence"
// design note.
func (c *Control) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.codeowners = nil
}

func (c *Control) ensureLoaded(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}

	owner, err := c.gw.GetOwner(ctx)
	if err != nil {
		c.logger.Warn("access: failed to fetch repository owner", "error", err)
	}
	c.owner = owner

	c.codeowners = c.loadCodeowners(ctx)
	c.loaded = true
}

func (c *Control) loadCodeowners(ctx context.Context) map[string]bool {
	owners := make(map[string]bool)

	var body []byte
	for _, path := range codeownersPaths {
		b, err := c.gw.GetFile(ctx, path)
		if err == nil {
			body = b
			break
		}
	}
	if body == nil {
		return owners
	}

	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Line format: "<pattern> @owner1 @owner2 ...". We only care
		// about the owner tokens, not the path pattern.
		fields := strings.Fields(line)
		for _, tok := range fields[1:] {
			if !strings.HasPrefix(tok, "@") {
				continue
			}
			tok = strings.TrimPrefix(tok, "@")
			if strings.Contains(tok, "/") {
				if c.owner.Kind != gateway.OwnerOrganization {
					// Team handles only resolve for org-owned repos.
					continue
				}
				parts := strings.SplitN(tok, "/", 2)
				members, err := c.gw.GetTeamMembers(ctx, parts[0], parts[1])
				if err != nil {
					c.logger.Warn("access: failed to resolve codeowners team, treating as empty",
						"team", tok, "error", err)
					continue
				}
				for _, m := range members {
					owners[strings.ToLower(m)] = true
				}
			} else {
				owners[strings.ToLower(tok)] = true
			}
		}
	}
	return owners
}

// IsAuthorized reports whether username may create anchors or post
// updates: the repository owner is always authorized, as is anyone
// named (directly, or via an org team) in CODEOWNERS.
func (c *Control) IsAuthorized(ctx context.Context, username string) bool {
	c.ensureLoaded(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	lower := strings.ToLower(username)
	if lower != "" && strings.ToLower(c.owner.Login) == lower {
		return true
	}
	return c.codeowners[lower]
}

// ValidateIssueCreator authorizes the author of an anchor issue. Used
// by UpdateProcessor step 2, which is stricter than per-comment
// filtering: an unauthorized anchor creator aborts the whole cycle.
func (c *Control) ValidateIssueCreator(ctx context.Context, issue gateway.Issue) bool {
	return c.IsAuthorized(ctx, issue.Author.Login)
}

// FilterAuthorizedComments retains only the comments whose author is
// authorized. It never errors; unauthorized authors are dropped
// silently (the caller is expected to log a warning if it cares about
// which were dropped).
func (c *Control) FilterAuthorizedComments(ctx context.Context, comments []gateway.Comment) []gateway.Comment {
	out := make([]gateway.Comment, 0, len(comments))
	for _, cm := range comments {
		if c.IsAuthorized(ctx, cm.Author.Login) {
			out = append(out, cm)
		}
	}
	return out
}
