// Package types contains shared data structures used across the auto-assign system.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"fmt"
	"strings"
)

// User represents a GitHub user account.
type User struct {
	Login string
}

// Label represents a GitHub issue label.
type Label struct {
	Name string
}

// Issue represents a GitHub issue or pull request as read from the tracker.
// It is an immutable snapshot for the duration of one resolution; assignment
// changes are applied externally and show up on the next event.
type Issue struct {
	Title       string
	Body        string
	State       string // "open" or "closed"
	Org         string
	Repo        string
	User        User
	Labels      []Label
	Assignees   []User
	Number      int
	PullRequest bool
}

// IsPR reports whether the issue is a pull request.
func (i *Issue) IsPR() bool {
	return i.PullRequest
}

// IsOpen reports whether the issue is open.
func (i *Issue) IsOpen() bool {
	return i.State == "open"
}

// ContainsAssignee reports whether the given login is already an assignee.
// GitHub logins are case-insensitive.
func (i *Issue) ContainsAssignee(login string) bool {
	for _, assignee := range i.Assignees {
		if strings.EqualFold(assignee.Login, login) {
			return true
		}
	}
	return false
}

// GlobalID returns a stable identifier of the form "org/repo#number" for logging.
func (i *Issue) GlobalID() string {
	return fmt.Sprintf("%s/%s#%d", i.Org, i.Repo, i.Number)
}

// FileDiff holds one changed file of a pull request together with its diff text.
type FileDiff struct {
	Path string
	Diff string
}

// TeamMember is one member of a team from the team directory.
type TeamMember struct {
	Login string
}

// Team is a named team from the external team directory.
type Team struct {
	Name    string
	Members []TeamMember
}

// Teams is the full team directory snapshot, keyed by team name.
type Teams struct {
	Teams map[string]Team
}

// Selection describes which assignees to remove from an issue.
type Selection struct {
	user string
	all  bool
}

// SelectAll selects every assignee.
func SelectAll() Selection {
	return Selection{all: true}
}

// SelectOne selects a single assignee by login.
func SelectOne(user string) Selection {
	return Selection{user: user}
}

// All reports whether the selection covers every assignee.
func (s Selection) All() bool {
	return s.all
}

// User returns the single selected login, if any.
func (s Selection) User() string {
	return s.user
}

// ResolutionSource records where a selected assignee came from.
type ResolutionSource int

// Resolution sources, in the order the orchestrator tries them.
const (
	SourceNone ResolutionSource = iota
	SourceComment
	SourceDiff
	SourceFallback
)

// String returns the source name for logging.
func (s ResolutionSource) String() string {
	switch s {
	case SourceComment:
		return "comment"
	case SourceDiff:
		return "diff"
	case SourceFallback:
		return "fallback"
	case SourceNone:
		return "none"
	default:
		return "unknown"
	}
}
