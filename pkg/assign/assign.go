// Package assign implements reviewer resolution and assignment for pull
// requests and issues.
//
// It supports several ways of setting assignment:
//
//   - `@bot assign @user`: assigns to the given user.
//   - `@bot claim`: assigns to the comment author.
//   - `@bot release-assignment`: removes the commenter's assignment.
//   - `r? @user`: assigns to the given user (PRs only).
//
// It can assign to any user, even one without write access to the repo: in
// that case the bot assigns itself and records the real owner through a
// claimed-by marker in the issue body.
//
// New PRs are auto-assigned based on the `owners` configuration, which maps
// changed-file patterns to candidate reviewers.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/auto-assign/pkg/config"
	"github.com/codeGROOVE-dev/auto-assign/pkg/github"
	"github.com/codeGROOVE-dev/auto-assign/pkg/interactions"
	"github.com/codeGROOVE-dev/auto-assign/pkg/types"
)

// assignSection is the editable-body section ID used for assignment state.
const assignSection = "ASSIGN"

// assignData is the structured marker tracked for plain-issue assignment.
type assignData struct {
	User *string `json:"user"`
}

// Recorder observes applied assignments. It exists so deployments can keep a
// work-queue record; failures are logged, never fatal.
type Recorder interface {
	RecordAssignment(ctx context.Context, issue *types.Issue, login string, source types.ResolutionSource) error
	RecordRelease(ctx context.Context, issue *types.Issue, login string) error
}

// Assigner makes exactly one best-effort assignment decision per event. It
// holds no mutable state across events other than its random source.
type Assigner struct {
	client       github.API
	cfg          *config.Config
	rng          *rand.Rand
	recorder     Recorder
	extraFilters []FilterFunc
	dryRun       bool
}

// New creates an Assigner for the given tracker client and configuration.
func New(client github.API, cfg *config.Config) *Assigner {
	return &Assigner{
		client: client,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // selection is not security sensitive
	}
}

// SetRecorder installs an assignment recorder.
func (a *Assigner) SetRecorder(r Recorder) {
	a.recorder = r
}

// SetExtraFilters installs additional candidate exclusion predicates. This is
// the extension point for a future capacity check; nothing installs one today.
func (a *Assigner) SetExtraFilters(filters ...FilterFunc) {
	a.extraFilters = filters
}

// SetDryRun suppresses the tracker comments DetermineAssignee would otherwise
// post while resolving, so dry runs stay free of side effects.
func (a *Assigner) SetDryRun(dryRun bool) {
	a.dryRun = dryRun
}

// HandleNewPR runs auto-assignment for a newly opened pull request and posts
// the welcome comment. It does nothing when no owners are configured, when
// the event is not a PR, or when the author picked an assignee manually.
func (a *Assigner) HandleNewPR(ctx context.Context, issue *types.Issue) error {
	if len(a.cfg.Assign.Owners) == 0 || !issue.IsPR() {
		return nil
	}

	diff, err := a.client.Diff(ctx, issue)
	if err != nil {
		return fmt.Errorf("expected issue %d to be a PR, but the diff could not be determined: %w", issue.Number, err)
	}

	// Don't auto-assign or welcome if the user manually set the assignee when opening.
	if len(issue.Assignees) > 0 {
		return nil
	}

	assignee, source, err := a.DetermineAssignee(ctx, issue, diff)
	if err != nil {
		return err
	}
	if strings.EqualFold(assignee, ghostUser) {
		slog.Info("Assignment suppressed via ghost", "issue", issue.GlobalID())
		return nil
	}

	// No welcome is posted when the author used `r?` in the opening body.
	var welcome string
	if source != types.SourceComment {
		if assignee != "" {
			welcome = returningUserWelcome(assignee, a.cfg.BotLogin)
		} else {
			welcome = returningUserWelcomeNoReviewer(issue.User.Login)
		}
	}

	if assignee != "" {
		a.applyAssignment(ctx, issue, assignee, source)
	}

	if welcome != "" {
		if err := a.client.PostComment(ctx, issue, welcome); err != nil {
			slog.Warn("Failed to post welcome comment", "issue", issue.GlobalID(), "error", err)
		}
	}
	return nil
}

// DetermineAssignee determines who to assign a PR to, based on an `r?`
// request in the PR body, the changed files, or the fallback group, in that
// order. Returns an empty assignee when nobody could be determined; the
// source reports which stage decided.
func (a *Assigner) DetermineAssignee(
	ctx context.Context,
	issue *types.Issue,
	diff []types.FileDiff,
) (string, types.ResolutionSource, error) {
	teams, err := a.client.Teams(ctx)
	if err != nil {
		return "", types.SourceNone, fmt.Errorf("failed to fetch team directory: %w", err)
	}

	if name, ok := FindReviewRequest(issue.Body); ok {
		// A self-request bypasses diff inference and all filtering.
		if strings.EqualFold(name, issue.User.Login) {
			return name, types.SourceComment, nil
		}
		assignee, err := a.findReviewer(teams, issue, []string{name})
		if err == nil {
			return assignee, types.SourceComment, nil
		}
		// Surface the problem, then fall through to diff inference.
		if a.dryRun {
			slog.Info("Dry run: would post resolver error comment", "issue", issue.GlobalID(), "comment", err.Error())
		} else if postErr := a.client.PostComment(ctx, issue, err.Error()); postErr != nil {
			slog.Warn("Failed to post resolver error comment", "issue", issue.GlobalID(), "error", postErr)
		}
	}

	candidates, err := ReviewersFromDiff(a.cfg.Assign.Owners, diff)
	switch {
	case err != nil:
		slog.Warn("Failed to find candidate reviewer from diff; is the owners config misconfigured?",
			"issue", issue.GlobalID(), "error", err)
	case len(candidates) > 0:
		assignee, err := a.findReviewer(teams, issue, candidates)
		if err == nil {
			return assignee, types.SourceDiff, nil
		}
		// Diff-based failures are expected in sparse-coverage repos and are
		// never surfaced to the user, but an unknown team smells like a
		// misconfigured group.
		var fre *FindReviewerError
		if errors.As(err, &fre) && fre.Reason == ReasonTeamNotFound {
			slog.Warn("Team not found via diff; is there maybe a misconfigured group?",
				"issue", issue.GlobalID(), "team", fre.Team)
		} else {
			slog.Info("No reviewer could be determined from diff", "issue", issue.GlobalID(), "error", err)
		}
	default:
		// No owners matched the diff; fall through.
	}

	if fallback, ok := a.cfg.Assign.FallbackGroup(); ok {
		assignee, err := a.findReviewer(teams, issue, fallback)
		if err == nil {
			return assignee, types.SourceFallback, nil
		}
		slog.Info("Failed to select from fallback group", "issue", issue.GlobalID(), "error", err)
	}

	return "", types.SourceNone, nil
}

// findReviewer resolves the requested names to one concrete username.
func (a *Assigner) findReviewer(teams *types.Teams, issue *types.Issue, names []string) (string, error) {
	candidates, ferr := candidateReviewers(teams, &a.cfg.Assign, issue, names, a.extraFilters)
	if ferr != nil {
		return "", ferr
	}
	slog.Info("Candidate reviewers resolved", "issue", issue.GlobalID(), "count", len(candidates))
	if candidates.Contains(ghostUser) {
		return ghostUser, nil
	}
	return pickCandidate(a.rng, candidates), nil
}

// HandleCommand handles an assignment command posted in a comment. `r?`
// requests embedded in a PR's opening body are handled by HandleNewPR, not
// here.
func (a *Assigner) HandleCommand(ctx context.Context, issue *types.Issue, commenter types.User, cmd Command) error {
	// The bot's own comments contain commands meant to instruct users, not
	// things the bot should respond to.
	if strings.EqualFold(commenter.Login, a.cfg.BotLogin) {
		return nil
	}

	if issue.IsPR() {
		return a.handlePRCommand(ctx, issue, commenter, cmd)
	}
	return a.handleIssueCommand(ctx, issue, commenter, cmd)
}

// handlePRCommand handles comment commands on pull requests. A PR must always
// carry some assignee, so release is disallowed, and comment-triggered
// requests assume an existing assignee remains when they are rejected.
func (a *Assigner) handlePRCommand(ctx context.Context, issue *types.Issue, commenter types.User, cmd Command) error {
	if !issue.IsOpen() {
		return a.client.PostComment(ctx, issue, closedPRWarning)
	}

	var username string
	switch cmd := cmd.(type) {
	case OwnCommand:
		username = commenter.Login

	case UserCommand:
		// Users on vacation may assign themselves, but nobody else may
		// assign them.
		if a.cfg.Assign.IsOnVacation(cmd.Username) && !strings.EqualFold(commenter.Login, cmd.Username) {
			return a.client.PostComment(ctx, issue, onVacationWarning(cmd.Username))
		}
		username = cmd.Username

	case ReleaseCommand:
		slog.Info("Ignoring release on PR, must always have an assignee", "issue", issue.GlobalID())
		return nil

	case ReviewNameCommand:
		// r? is ignored when owners is not configured, to avoid conflicting
		// with older assignment bots during migration.
		if len(a.cfg.Assign.Owners) == 0 {
			return nil
		}
		if strings.EqualFold(cmd.Name, commenter.Login) {
			username = commenter.Login
			break
		}
		teams, err := a.client.Teams(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch team directory: %w", err)
		}

		// When the request names a team, attach the matching team label.
		teamName := strings.TrimPrefix(strings.TrimPrefix(cmd.Name, "t-"), "T-")
		if _, ok := teams.Teams[teamName]; ok {
			label := types.Label{Name: "T-" + teamName}
			if err := a.client.AddLabels(ctx, issue, []types.Label{label}); err != nil {
				var unknown *github.UnknownLabelsError
				if errors.As(err, &unknown) {
					slog.Warn("Error assigning team label", "issue", issue.GlobalID(), "error", err)
				} else {
					return err
				}
			}
		}

		username, err = a.findReviewer(teams, issue, []string{cmd.Name})
		if err != nil {
			return a.client.PostComment(ctx, issue, err.Error())
		}

	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}

	if strings.EqualFold(username, ghostUser) {
		slog.Info("Assignment suppressed via ghost", "issue", issue.GlobalID())
		return nil
	}

	a.applyAssignment(ctx, issue, username, types.SourceComment)
	return nil
}

// handleIssueCommand handles commands on plain issues. Assignment state is
// tracked via the claimed-by marker in the issue body, so users without write
// access can still be recognized as the de-facto owner.
func (a *Assigner) handleIssueCommand(ctx context.Context, issue *types.Issue, commenter types.User, cmd Command) error {
	isTeamMember, err := a.client.IsTeamMember(ctx, commenter.Login)
	if err != nil {
		isTeamMember = false
	}

	store := interactions.New(issue, assignSection)

	var toAssign string
	switch cmd := cmd.(type) {
	case OwnCommand:
		toAssign = commenter.Login

	case UserCommand:
		if !isTeamMember && !strings.EqualFold(cmd.Username, commenter.Login) {
			return a.client.PostComment(ctx, issue, onlyTeamMembersAssignOthers)
		}
		toAssign = cmd.Username

	case ReleaseCommand:
		return a.releaseIssue(ctx, issue, commenter, isTeamMember, store)

	case ReviewNameCommand:
		return a.client.PostComment(ctx, issue, reviewOnlyOnPRs)

	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}

	// Don't re-assign if already assigned, e.g. on comment edit.
	if issue.ContainsAssignee(toAssign) {
		slog.Info("Ignoring assign, already assigned", "issue", issue.GlobalID(), "user", toAssign)
		return nil
	}

	data := assignData{User: &toAssign}
	if err := store.Apply(ctx, a.client, "", data); err != nil {
		return err
	}

	switch err := a.client.SetAssignee(ctx, issue, toAssign); {
	case err == nil:
		a.record(ctx, issue, toAssign, types.SourceComment)
		return nil
	case errors.Is(err, github.ErrInvalidAssignee):
		if err := a.client.SetAssignee(ctx, issue, a.cfg.BotLogin); err != nil {
			return fmt.Errorf("self-assignment failed: %w", err)
		}
		if err := store.Apply(ctx, a.client, issueClaimedBody(toAssign), data); err != nil {
			return err
		}
		a.record(ctx, issue, toAssign, types.SourceComment)
		return nil
	default:
		return err
	}
}

// releaseIssue removes an assignment from a plain issue. The current assignee
// may release themself; team members may release anyone. Releasing an
// unassigned issue is an error.
func (a *Assigner) releaseIssue(
	ctx context.Context,
	issue *types.Issue,
	commenter types.User,
	isTeamMember bool,
	store *interactions.EditIssueBody,
) error {
	var data assignData
	hasData, err := store.CurrentData(&data)
	if err != nil {
		return err
	}

	if hasData && data.User != nil {
		if !strings.EqualFold(*data.User, commenter.Login) && !isTeamMember {
			return a.client.PostComment(ctx, issue, cannotReleaseOther)
		}
		released := *data.User
		if err := a.client.RemoveAssignees(ctx, issue, types.SelectAll()); err != nil {
			return err
		}
		if err := store.Apply(ctx, a.client, "", assignData{}); err != nil {
			return err
		}
		a.recordRelease(ctx, issue, released)
		return nil
	}

	if issue.ContainsAssignee(commenter.Login) {
		if err := a.client.RemoveAssignees(ctx, issue, types.SelectOne(commenter.Login)); err != nil {
			return err
		}
		if err := store.Apply(ctx, a.client, "", assignData{}); err != nil {
			return err
		}
		a.recordRelease(ctx, issue, commenter.Login)
		return nil
	}

	return a.client.PostComment(ctx, issue, cannotReleaseUnassigned)
}

// applyAssignment sets the assignee of a PR, alerting any errors. It is
// idempotent: re-delivered events for an existing assignee do nothing, which
// keeps the single external mutation at-most-once.
func (a *Assigner) applyAssignment(ctx context.Context, issue *types.Issue, username string, source types.ResolutionSource) {
	// Don't re-assign if already assigned, e.g. on comment edit.
	if issue.ContainsAssignee(username) {
		slog.Info("Ignoring assign, already assigned", "issue", issue.GlobalID(), "user", username)
		return
	}

	err := a.client.SetAssignee(ctx, issue, username)
	if err == nil {
		a.record(ctx, issue, username, source)
		return
	}

	if errors.Is(err, github.ErrInvalidAssignee) {
		// The user lacks the minimum repository permission. Assign the bot
		// instead and record the real owner via the claimed-by marker so
		// they are still recognized as the de-facto owner.
		if selfErr := a.client.SetAssignee(ctx, issue, a.cfg.BotLogin); selfErr != nil {
			slog.Warn("Bot self-assignment failed", "issue", issue.GlobalID(), "error", selfErr)
			return
		}
		store := interactions.New(issue, assignSection)
		data := assignData{User: &username}
		if applyErr := store.Apply(ctx, a.client, claimedByMarkerText(username), data); applyErr != nil {
			slog.Warn("Failed to write claimed-by marker", "issue", issue.GlobalID(), "error", applyErr)
		}
		if postErr := a.client.PostComment(ctx, issue, claimedByComment(username)); postErr != nil {
			slog.Warn("Failed to post claimed-by comment", "issue", issue.GlobalID(), "error", postErr)
		}
		a.record(ctx, issue, username, source)
		return
	}

	// Unexpected tracker failure: log, best-effort comment, no retry.
	slog.Warn("Failed to set assignee", "issue", issue.GlobalID(), "user", username, "error", err)
	if postErr := a.client.PostComment(ctx, issue, assignmentFailedNote(username, err)); postErr != nil {
		slog.Warn("Failed to post error comment", "issue", issue.GlobalID(), "error", postErr)
	}
}

func (a *Assigner) record(ctx context.Context, issue *types.Issue, login string, source types.ResolutionSource) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordAssignment(ctx, issue, login, source); err != nil {
		slog.Warn("Failed to record assignment", "issue", issue.GlobalID(), "user", login, "error", err)
	}
}

func (a *Assigner) recordRelease(ctx context.Context, issue *types.Issue, login string) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordRelease(ctx, issue, login); err != nil {
		slog.Warn("Failed to record release", "issue", issue.GlobalID(), "user", login, "error", err)
	}
}
