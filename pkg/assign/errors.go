package assign

import (
	"fmt"
	"strings"
)

// FilterReason says why a reviewer could not be selected.
type FilterReason int

// Reasons a resolution can fail or a candidate can be dropped.
const (
	// ReasonTeamNotFound: the request named a `/`-qualified team or group
	// that does not exist.
	ReasonTeamNotFound FilterReason = iota
	// ReasonNoReviewer: the names resolved to nothing at all. This can
	// happen with a cyclical group or other misconfiguration.
	ReasonNoReviewer
	// ReasonAllReviewersFiltered: every candidate was excluded. One example
	// is a team whose only member is the PR author.
	ReasonAllReviewersFiltered
	// ReasonNoReviewerHasCapacity is reserved for capacity tracking.
	ReasonNoReviewerHasCapacity
	// ReasonReviewerHasNoCapacity is reserved for capacity tracking.
	ReasonReviewerHasNoCapacity
	// ReasonReviewerOnVacation: the candidate is on the vacation list.
	ReasonReviewerOnVacation
	// ReasonReviewerIsPRAuthor: the candidate authored the PR.
	ReasonReviewerIsPRAuthor
	// ReasonReviewerAlreadyAssigned: the candidate is already an assignee.
	ReasonReviewerAlreadyAssigned
)

// FindReviewerError reports why reviewer resolution failed. Its Error text is
// user-facing and is posted as a comment for fatal and filtering errors.
type FindReviewerError struct {
	Team     string
	Username string
	Initial  []string
	Filtered []string
	Reason   FilterReason
}

// Error implements the error interface with actionable, user-facing text.
func (e *FindReviewerError) Error() string {
	switch e.Reason {
	case ReasonTeamNotFound:
		return fmt.Sprintf("Team or group `%s` not found.\n\n"+
			"Team names can be found in the team directory.\n"+
			"Reviewer group names can be found in this repository's assignment configuration.", e.Team)
	case ReasonNoReviewer:
		return fmt.Sprintf("No reviewers could be found from initial request `%s`\n"+
			"This repo may be misconfigured.\n"+
			"Use `r?` to specify someone else to assign.", strings.Join(e.Initial, ","))
	case ReasonAllReviewersFiltered:
		return fmt.Sprintf("Could not assign reviewer from: `%s`.\n"+
			"User(s) `%s` are either the PR author, already assigned, or on vacation. "+
			"Please use `r?` to specify someone else to assign.",
			strings.Join(e.Initial, ","), strings.Join(e.Filtered, ","))
	case ReasonNoReviewerHasCapacity:
		return "Could not find a reviewer with enough capacity to be assigned at this time. This is a problem.\n\n" +
			"Please contact the infrastructure team."
	case ReasonReviewerHasNoCapacity:
		return fmt.Sprintf("`%s` has insufficient capacity to be assigned the pull request at this time. "+
			"PR assignment has been reverted.\n\nPlease choose another assignee.", e.Username)
	case ReasonReviewerOnVacation:
		return fmt.Sprintf("%s is on vacation.\n\nPlease choose another assignee.", e.Username)
	case ReasonReviewerIsPRAuthor:
		return "Pull request author cannot be assigned as reviewer.\n\nPlease choose another assignee."
	case ReasonReviewerAlreadyAssigned:
		return "Requested reviewer is already assigned to this pull request.\n\nPlease choose another assignee."
	default:
		return "could not find a reviewer"
	}
}

func teamNotFoundError(team string) *FindReviewerError {
	return &FindReviewerError{Reason: ReasonTeamNotFound, Team: team}
}

func noReviewerError(initial []string) *FindReviewerError {
	return &FindReviewerError{Reason: ReasonNoReviewer, Initial: initial}
}

func allFilteredError(initial, filtered []string) *FindReviewerError {
	return &FindReviewerError{Reason: ReasonAllReviewersFiltered, Initial: initial, Filtered: filtered}
}
