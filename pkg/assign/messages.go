package assign

import "fmt"

// User-facing message templates. These are posted as tracker comments; keep
// the wording stable since users link to them.

func returningUserWelcome(assignee, bot string) string {
	return fmt.Sprintf("r? @%s\n\n%s has assigned @%s.\n"+
		"They will have a look at your PR within the next two weeks and either review your PR or "+
		"reassign to another reviewer.\n\nUse `r?` to explicitly pick a reviewer", assignee, bot, assignee)
}

func returningUserWelcomeNoReviewer(author string) string {
	return fmt.Sprintf("@%s: no appropriate reviewer found, use `r?` to override", author)
}

func onVacationWarning(username string) string {
	return fmt.Sprintf("%s is on vacation.\n\nPlease choose another assignee.", username)
}

func assignmentFailedNote(username string, err error) string {
	return fmt.Sprintf("Failed to set assignee to `%s`: %v\n\n"+
		"> **Note**: Only org members with at least the repository \"read\" role, "+
		"users with write permissions, or people who have commented on the PR may "+
		"be assigned.", username, err)
}

func claimedByComment(username string) string {
	return fmt.Sprintf("@%s does not have permission to be assigned directly, "+
		"so the bot has been assigned in their place.\n\n"+
		"@%s has been recorded as the owner via the claimed-by marker above.", username, username)
}

func claimedByMarkerText(username string) string {
	return fmt.Sprintf("This is currently claimed by @%s.", username)
}

func issueClaimedBody(username string) string {
	return fmt.Sprintf("This issue has been assigned to @%s via the claimed-by marker.", username)
}

const closedPRWarning = "Assignment is not allowed on a closed PR."

const reviewOnlyOnPRs = "`r?` is only allowed on PRs."

const onlyTeamMembersAssignOthers = "Only team members can assign other users."

const cannotReleaseOther = "Cannot release another user's assignment."

const cannotReleaseUnassigned = "Cannot release unassigned issue."
