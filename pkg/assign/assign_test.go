package assign

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/codeGROOVE-dev/auto-assign/pkg/config"
	"github.com/codeGROOVE-dev/auto-assign/pkg/github"
	"github.com/codeGROOVE-dev/auto-assign/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/auto-assign/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		BotLogin: "assign-bot",
		Assign: config.AssignConfig{
			Owners: map[string][]string{
				"compiler/": {"reviewer1"},
				"docs/":     {"reviewer2"},
			},
			AdhocGroups:     map[string][]string{},
			UsersOnVacation: []string{"vacationer"},
		},
	}
}

func newTestAssigner(mock *testutil.MockTracker, cfg *config.Config) *Assigner {
	a := New(mock, cfg)
	a.rng = rand.New(rand.NewSource(1))
	return a
}

type recordedAssignment struct {
	issue  string
	login  string
	source types.ResolutionSource
}

type fakeRecorder struct {
	assignments []recordedAssignment
	releases    []string
}

func (r *fakeRecorder) RecordAssignment(_ context.Context, issue *types.Issue, login string, source types.ResolutionSource) error {
	r.assignments = append(r.assignments, recordedAssignment{issue.GlobalID(), login, source})
	return nil
}

func (r *fakeRecorder) RecordRelease(_ context.Context, _ *types.Issue, login string) error {
	r.releases = append(r.releases, login)
	return nil
}

func TestHandleNewPR_AssignsFromDiff(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	mock.SetDiff(issue, []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}

	if got := mock.Assigned(); len(got) != 1 || got[0] != "reviewer1" {
		t.Errorf("assigned %v, want [reviewer1]", got)
	}
	comments := mock.Comments()
	if len(comments) != 1 {
		t.Fatalf("got %d comments, want the welcome comment", len(comments))
	}
	if !strings.Contains(comments[0], "r? @reviewer1") {
		t.Errorf("welcome comment does not name the reviewer: %q", comments[0])
	}
}

func TestHandleNewPR_RecordsAssignment(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	mock.SetDiff(issue, []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	rec := &fakeRecorder{}
	a.SetRecorder(rec)

	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if len(rec.assignments) != 1 {
		t.Fatalf("recorded %d assignments, want 1", len(rec.assignments))
	}
	got := rec.assignments[0]
	if got.login != "reviewer1" || got.source != types.SourceDiff {
		t.Errorf("recorded %+v, want reviewer1 from diff", got)
	}
}

func TestHandleNewPR_NoOwnersConfigured(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()

	cfg := testConfig()
	cfg.Assign.Owners = map[string][]string{}

	a := newTestAssigner(mock, cfg)
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if len(mock.Assigned()) != 0 || len(mock.Comments()) != 0 {
		t.Error("expected no side effects without an owners map")
	}
}

func TestHandleNewPR_ManualAssigneeSkips(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	issue.Assignees = []types.User{{Login: "handpicked"}}
	mock.SetDiff(issue, []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if len(mock.Assigned()) != 0 || len(mock.Comments()) != 0 {
		t.Error("manual assignee must suppress auto-assignment and the welcome")
	}
}

func TestHandleNewPR_BodyRequestSkipsWelcome(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	issue.Body = "Fixes the frobnicator.\n\nr? @carol"
	mock.SetDiff(issue, []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if got := mock.Assigned(); len(got) != 1 || got[0] != "carol" {
		t.Errorf("assigned %v, want [carol]", got)
	}
	if len(mock.Comments()) != 0 {
		t.Errorf("no welcome expected for an explicit request, got %v", mock.Comments())
	}
}

func TestHandleNewPR_SelfRequestBypassesFilters(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	// The author requests themself; the author filter must not reject this.
	issue.Body = "r? @author"
	mock.SetDiff(issue, []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if got := mock.Assigned(); len(got) != 1 || got[0] != "author" {
		t.Errorf("assigned %v, want [author]", got)
	}
}

func TestHandleNewPR_GhostSuppressesEverything(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	issue.Body = "r? ghost"
	mock.SetDiff(issue, []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if len(mock.Assigned()) != 0 {
		t.Errorf("ghost must suppress assignment, got %v", mock.Assigned())
	}
	if len(mock.Comments()) != 0 {
		t.Errorf("ghost must suppress all comments, got %v", mock.Comments())
	}
}

func TestHandleNewPR_BadRequestFallsThroughToDiff(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	issue.Body = "r? rust-lang/nonexistent"
	mock.SetDiff(issue, []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	// The resolution error is surfaced, then diff inference still assigns.
	if got := mock.Assigned(); len(got) != 1 || got[0] != "reviewer1" {
		t.Errorf("assigned %v, want [reviewer1]", got)
	}
	var sawError bool
	for _, c := range mock.Comments() {
		if strings.Contains(c, "not found") {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("expected a team-not-found comment, got %v", mock.Comments())
	}
}

func TestHandleNewPR_FallbackGroup(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	mock.SetDiff(issue, []types.FileDiff{{Path: "unowned/file.rs", Diff: "+change\n"}})

	cfg := testConfig()
	cfg.Assign.AdhocGroups[config.FallbackGroupName] = []string{"fallback-reviewer"}

	a := newTestAssigner(mock, cfg)
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if got := mock.Assigned(); len(got) != 1 || got[0] != "fallback-reviewer" {
		t.Errorf("assigned %v, want [fallback-reviewer]", got)
	}
}

func TestHandleNewPR_NoReviewerFoundStillWelcomes(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	mock.SetDiff(issue, []types.FileDiff{{Path: "unowned/file.rs", Diff: "+change\n"}})

	a := newTestAssigner(mock, testConfig())
	if err := a.HandleNewPR(context.Background(), issue); err != nil {
		t.Fatalf("HandleNewPR: %v", err)
	}
	if len(mock.Assigned()) != 0 {
		t.Errorf("expected no assignment, got %v", mock.Assigned())
	}
	comments := mock.Comments()
	if len(comments) != 1 || !strings.Contains(comments[0], "no appropriate reviewer found") {
		t.Errorf("expected the no-reviewer welcome, got %v", comments)
	}
}

func TestDetermineAssignee_SourceOrder(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	diff := []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}}

	cfg := testConfig()
	cfg.Assign.AdhocGroups[config.FallbackGroupName] = []string{"fallback-reviewer"}
	a := newTestAssigner(mock, cfg)

	// Explicit request wins over the diff.
	issue.Body = "r? @carol"
	assignee, source, err := a.DetermineAssignee(context.Background(), issue, diff)
	if err != nil {
		t.Fatalf("DetermineAssignee: %v", err)
	}
	if assignee != "carol" || source != types.SourceComment {
		t.Errorf("got %q from %v, want carol from comment", assignee, source)
	}

	// Without a request, the diff decides.
	issue.Body = ""
	assignee, source, err = a.DetermineAssignee(context.Background(), issue, diff)
	if err != nil {
		t.Fatalf("DetermineAssignee: %v", err)
	}
	if assignee != "reviewer1" || source != types.SourceDiff {
		t.Errorf("got %q from %v, want reviewer1 from diff", assignee, source)
	}

	// Without a diff match, the fallback group decides.
	assignee, source, err = a.DetermineAssignee(context.Background(), issue, nil)
	if err != nil {
		t.Fatalf("DetermineAssignee: %v", err)
	}
	if assignee != "fallback-reviewer" || source != types.SourceFallback {
		t.Errorf("got %q from %v, want fallback-reviewer from fallback", assignee, source)
	}
}

func TestDetermineAssignee_DryRunPostsNoComments(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	issue.Body = "r? rust-lang/nonexistent"
	diff := []types.FileDiff{{Path: "compiler/a.rs", Diff: "+change\n"}}

	a := newTestAssigner(mock, testConfig())
	a.SetDryRun(true)

	assignee, source, err := a.DetermineAssignee(context.Background(), issue, diff)
	if err != nil {
		t.Fatalf("DetermineAssignee: %v", err)
	}
	// The failed request still falls through to diff inference.
	if assignee != "reviewer1" || source != types.SourceDiff {
		t.Errorf("got %q from %v, want reviewer1 from diff", assignee, source)
	}
	if len(mock.Comments()) != 0 {
		t.Errorf("dry run must not post comments, got %v", mock.Comments())
	}
	if len(mock.Assigned()) != 0 {
		t.Errorf("dry run must not assign, got %v", mock.Assigned())
	}
}

func TestApplyAssignment_Idempotent(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()

	a := newTestAssigner(mock, testConfig())
	ctx := context.Background()

	// First claim assigns; a re-delivered event for the same user is a no-op.
	if err := a.HandleCommand(ctx, issue, types.User{Login: "carol"}, OwnCommand{}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if err := a.HandleCommand(ctx, issue, types.User{Login: "carol"}, OwnCommand{}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if got := mock.Assigned(); len(got) != 1 {
		t.Errorf("expected exactly one assignment call, got %v", got)
	}
}

func TestApplyAssignment_InvalidAssigneeFallsBackToBot(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	mock.SetAssigneeError("outsider", github.ErrInvalidAssignee)

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "outsider"}, OwnCommand{})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	if got := mock.Assigned(); len(got) != 1 || got[0] != "assign-bot" {
		t.Errorf("assigned %v, want the bot itself", got)
	}
	bodies := mock.EditedBodies()
	if len(bodies) == 0 || !strings.Contains(bodies[len(bodies)-1], "outsider") {
		t.Errorf("claimed-by marker must record the real owner, got %v", bodies)
	}
	var sawClaim bool
	for _, c := range mock.Comments() {
		if strings.Contains(c, "@outsider does not have permission") {
			sawClaim = true
		}
	}
	if !sawClaim {
		t.Errorf("expected the claimed-by comment, got %v", mock.Comments())
	}
}

func TestHandleCommand_BotIgnoresItself(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "Assign-Bot"}, OwnCommand{})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if len(mock.Assigned()) != 0 || len(mock.Comments()) != 0 {
		t.Error("the bot's own comments must be ignored")
	}
}

func TestHandleCommand_ClosedPR(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	issue.State = "closed"

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, OwnCommand{})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	comments := mock.Comments()
	if len(comments) != 1 || !strings.Contains(comments[0], "closed PR") {
		t.Errorf("expected the closed-PR warning, got %v", comments)
	}
	if len(mock.Assigned()) != 0 {
		t.Errorf("no assignment on a closed PR, got %v", mock.Assigned())
	}
}

func TestHandleCommand_VacationRejectedForOthers(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, UserCommand{Username: "vacationer"})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	comments := mock.Comments()
	if len(comments) != 1 || !strings.Contains(comments[0], "on vacation") {
		t.Errorf("expected the vacation warning, got %v", comments)
	}
	if len(mock.Assigned()) != 0 {
		t.Errorf("vacationing user must not be assigned by others, got %v", mock.Assigned())
	}
}

func TestHandleCommand_VacationSelfAssignAllowed(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "Vacationer"}, UserCommand{Username: "vacationer"})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if got := mock.Assigned(); len(got) != 1 || got[0] != "vacationer" {
		t.Errorf("self-assignment while on vacation must work, got %v", got)
	}
}

func TestHandleCommand_ReleaseIgnoredOnPR(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	issue.Assignees = []types.User{{Login: "carol"}}

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, ReleaseCommand{})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if len(mock.Removed()) != 0 || len(mock.Comments()) != 0 {
		t.Error("release on a PR must be silently ignored")
	}
}

func TestHandleCommand_ReviewNameAddsTeamLabel(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()
	mock.SetTeams(testTeams(map[string][]string{
		"compiler": {"alice", "bob"},
	}))

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, ReviewNameCommand{Name: "t-compiler"})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	labels := mock.AddedLabels()
	if len(labels) != 1 || labels[0].Name != "T-compiler" {
		t.Errorf("labels %v, want [T-compiler]", labels)
	}
	got := mock.Assigned()
	if len(got) != 1 || (got[0] != "alice" && got[0] != "bob") {
		t.Errorf("assigned %v, want a compiler team member", got)
	}
}

func TestHandleCommand_ReviewNameIgnoredWithoutOwners(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()

	cfg := testConfig()
	cfg.Assign.Owners = map[string][]string{}

	a := newTestAssigner(mock, cfg)
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, ReviewNameCommand{Name: "alice"})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if len(mock.Assigned()) != 0 || len(mock.Comments()) != 0 {
		t.Error("r? must be ignored when no owners map is configured")
	}
}

func TestHandleCommand_ReviewNameResolutionErrorIsCommented(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := testIssue()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, ReviewNameCommand{Name: "rust-lang/nonexistent"})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	comments := mock.Comments()
	if len(comments) != 1 || !strings.Contains(comments[0], "not found") {
		t.Errorf("expected a team-not-found comment, got %v", comments)
	}
	if len(mock.Assigned()) != 0 {
		t.Errorf("no assignment after a failed resolution, got %v", mock.Assigned())
	}
}

func newTestIssueOnly() *types.Issue {
	issue := testIssue()
	issue.PullRequest = false
	return issue
}

func TestHandleCommand_IssueClaim(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := newTestIssueOnly()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, OwnCommand{})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if got := mock.Assigned(); len(got) != 1 || got[0] != "carol" {
		t.Errorf("assigned %v, want [carol]", got)
	}
	// The structured marker is written even for a direct assignment.
	bodies := mock.EditedBodies()
	if len(bodies) == 0 || !strings.Contains(bodies[len(bodies)-1], `"carol"`) {
		t.Errorf("expected the data marker to record carol, got %v", bodies)
	}
}

func TestHandleCommand_IssueAssignOtherRequiresTeamMember(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := newTestIssueOnly()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, UserCommand{Username: "dave"})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	comments := mock.Comments()
	if len(comments) != 1 || !strings.Contains(comments[0], "team members") {
		t.Errorf("expected the team-members-only warning, got %v", comments)
	}
	if len(mock.Assigned()) != 0 {
		t.Errorf("no assignment expected, got %v", mock.Assigned())
	}

	// A team member may assign anyone.
	mock.SetTeamMember("carol", true)
	if err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, UserCommand{Username: "dave"}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if got := mock.Assigned(); len(got) != 1 || got[0] != "dave" {
		t.Errorf("assigned %v, want [dave]", got)
	}
}

func TestHandleCommand_IssueReviewNameRejected(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := newTestIssueOnly()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, ReviewNameCommand{Name: "alice"})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	comments := mock.Comments()
	if len(comments) != 1 || !strings.Contains(comments[0], "only allowed on PRs") {
		t.Errorf("expected the PRs-only warning, got %v", comments)
	}
}

func TestHandleCommand_IssueReleaseSelf(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := newTestIssueOnly()

	a := newTestAssigner(mock, testConfig())
	ctx := context.Background()

	if err := a.HandleCommand(ctx, issue, types.User{Login: "carol"}, OwnCommand{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := a.HandleCommand(ctx, issue, types.User{Login: "carol"}, ReleaseCommand{}); err != nil {
		t.Fatalf("release: %v", err)
	}
	removed := mock.Removed()
	if len(removed) != 1 || !removed[0].All() {
		t.Errorf("expected one release of all assignees, got %v", removed)
	}
	if len(issue.Assignees) != 0 {
		t.Errorf("assignees should be cleared, got %v", issue.Assignees)
	}
}

func TestHandleCommand_IssueReleaseOtherRequiresTeamMember(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := newTestIssueOnly()

	a := newTestAssigner(mock, testConfig())
	ctx := context.Background()

	if err := a.HandleCommand(ctx, issue, types.User{Login: "carol"}, OwnCommand{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := a.HandleCommand(ctx, issue, types.User{Login: "dave"}, ReleaseCommand{}); err != nil {
		t.Fatalf("release: %v", err)
	}
	var sawRejection bool
	for _, c := range mock.Comments() {
		if strings.Contains(c, "another user's assignment") {
			sawRejection = true
		}
	}
	if !sawRejection {
		t.Errorf("expected the cannot-release warning, got %v", mock.Comments())
	}
	if len(mock.Removed()) != 0 {
		t.Errorf("no removal expected, got %v", mock.Removed())
	}
}

func TestHandleCommand_IssueReleaseUnassigned(t *testing.T) {
	mock := testutil.NewMockTracker()
	issue := newTestIssueOnly()

	a := newTestAssigner(mock, testConfig())
	err := a.HandleCommand(context.Background(), issue, types.User{Login: "carol"}, ReleaseCommand{})
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	comments := mock.Comments()
	if len(comments) != 1 || !strings.Contains(comments[0], "unassigned") {
		t.Errorf("expected the unassigned warning, got %v", comments)
	}
}
