// Package testutil provides mock implementations and testing utilities for
// the auto-assign project.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeGROOVE-dev/auto-assign/pkg/types"
)

// MockTracker implements github.API for testing. It is a programmable mock:
// tests configure responses up front and inspect recorded side effects after.
type MockTracker struct {
	issues         map[string]*types.Issue
	diffs          map[string][]types.FileDiff
	teams          *types.Teams
	teamMembers    map[string]bool
	assigneeErrors map[string]error
	diffErr        error
	teamsErr       error

	comments    []string
	assigned    []string
	removed     []types.Selection
	addedLabels []types.Label
	editedBody  []string

	mu sync.RWMutex
}

// NewMockTracker creates an empty mock.
func NewMockTracker() *MockTracker {
	return &MockTracker{
		issues:         make(map[string]*types.Issue),
		diffs:          make(map[string][]types.FileDiff),
		teams:          &types.Teams{Teams: map[string]types.Team{}},
		teamMembers:    make(map[string]bool),
		assigneeErrors: make(map[string]error),
	}
}

// SetIssue registers an issue for Issue lookups.
func (m *MockTracker) SetIssue(issue *types.Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.GlobalID()] = issue
}

// SetDiff registers the changed files for an issue.
func (m *MockTracker) SetDiff(issue *types.Issue, diff []types.FileDiff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diffs[issue.GlobalID()] = diff
}

// SetDiffError makes Diff fail.
func (m *MockTracker) SetDiffError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diffErr = err
}

// SetTeams installs the team directory snapshot.
func (m *MockTracker) SetTeams(teams *types.Teams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams = teams
}

// SetTeamsError makes Teams fail.
func (m *MockTracker) SetTeamsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teamsErr = err
}

// SetTeamMember marks a login as a team member for IsTeamMember.
func (m *MockTracker) SetTeamMember(login string, member bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teamMembers[login] = member
}

// SetAssigneeError makes SetAssignee fail for the given login.
func (m *MockTracker) SetAssigneeError(login string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigneeErrors[login] = err
}

// Issue returns a registered issue.
func (m *MockTracker) Issue(_ context.Context, org, repo string, number int) (*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := fmt.Sprintf("%s/%s#%d", org, repo, number)
	issue, ok := m.issues[key]
	if !ok {
		return nil, fmt.Errorf("no mock issue %s", key)
	}
	return issue, nil
}

// Diff returns the registered changed files.
func (m *MockTracker) Diff(_ context.Context, issue *types.Issue) ([]types.FileDiff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.diffErr != nil {
		return nil, m.diffErr
	}
	return m.diffs[issue.GlobalID()], nil
}

// Teams returns the installed team directory.
func (m *MockTracker) Teams(_ context.Context) (*types.Teams, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.teamsErr != nil {
		return nil, m.teamsErr
	}
	return m.teams, nil
}

// IsTeamMember reports configured membership.
func (m *MockTracker) IsTeamMember(_ context.Context, login string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.teamMembers[login], nil
}

// SetAssignee records the assignment and mirrors it into the issue snapshot,
// the way a refetch from the tracker would.
func (m *MockTracker) SetAssignee(_ context.Context, issue *types.Issue, login string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.assigneeErrors[login]; err != nil {
		return err
	}
	m.assigned = append(m.assigned, login)
	issue.Assignees = append(issue.Assignees, types.User{Login: login})
	return nil
}

// RemoveAssignees records the removal.
func (m *MockTracker) RemoveAssignees(_ context.Context, issue *types.Issue, sel types.Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, sel)
	if sel.All() {
		issue.Assignees = nil
	} else {
		var remaining []types.User
		for _, a := range issue.Assignees {
			if a.Login != sel.User() {
				remaining = append(remaining, a)
			}
		}
		issue.Assignees = remaining
	}
	return nil
}

// PostComment records the comment body.
func (m *MockTracker) PostComment(_ context.Context, _ *types.Issue, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, body)
	return nil
}

// EditBody records the new body and updates the snapshot.
func (m *MockTracker) EditBody(_ context.Context, issue *types.Issue, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editedBody = append(m.editedBody, body)
	issue.Body = body
	return nil
}

// AddLabels records the added labels.
func (m *MockTracker) AddLabels(_ context.Context, _ *types.Issue, labels []types.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addedLabels = append(m.addedLabels, labels...)
	return nil
}

// Comments returns all posted comment bodies.
func (m *MockTracker) Comments() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.comments...)
}

// Assigned returns all logins passed to SetAssignee, in order.
func (m *MockTracker) Assigned() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.assigned...)
}

// Removed returns all removal selections.
func (m *MockTracker) Removed() []types.Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Selection(nil), m.removed...)
}

// AddedLabels returns all labels added.
func (m *MockTracker) AddedLabels() []types.Label {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Label(nil), m.addedLabels...)
}

// EditedBodies returns all bodies written via EditBody, in order.
func (m *MockTracker) EditedBodies() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.editedBody...)
}
