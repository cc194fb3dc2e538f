package github

import (
	"context"

	"github.com/codeGROOVE-dev/auto-assign/pkg/types"
)

// API defines the tracker operations the assignment engine consumes. The
// concrete transport lives in Client; tests substitute a programmable mock.
type API interface {
	// Reads.
	Issue(ctx context.Context, org, repo string, number int) (*types.Issue, error)
	Diff(ctx context.Context, issue *types.Issue) ([]types.FileDiff, error)
	Teams(ctx context.Context) (*types.Teams, error)
	IsTeamMember(ctx context.Context, login string) (bool, error)

	// Side effects.
	SetAssignee(ctx context.Context, issue *types.Issue, login string) error
	RemoveAssignees(ctx context.Context, issue *types.Issue, sel types.Selection) error
	PostComment(ctx context.Context, issue *types.Issue, body string) error
	EditBody(ctx context.Context, issue *types.Issue, body string) error
	AddLabels(ctx context.Context, issue *types.Issue, labels []types.Label) error
}
