package assign

import (
	"log/slog"
	"strings"

	"github.com/codeGROOVE-dev/auto-assign/pkg/config"
	"github.com/codeGROOVE-dev/auto-assign/pkg/types"
)

// ghostUser is GitHub's placeholder account for deleted accounts. It is used
// as a convenient way to prevent assignment, typically for rollups or
// experiments where you don't want any assignments or noise. It bypasses all
// filtering.
const ghostUser = "ghost"

// CandidateSet is a deduplicated set of usernames, keyed by lowercase login
// with the display form as value. GitHub logins compare case-insensitively.
type CandidateSet map[string]string

// Add inserts a login, preserving the first display form seen.
func (s CandidateSet) Add(login string) {
	key := strings.ToLower(login)
	if _, ok := s[key]; !ok {
		s[key] = login
	}
}

// Contains reports whether the login is in the set, ignoring case.
func (s CandidateSet) Contains(login string) bool {
	_, ok := s[strings.ToLower(login)]
	return ok
}

// FilterFunc is an injectable exclusion predicate applied to every candidate
// produced during expansion. It returns a non-nil error describing the reason
// when the candidate must be dropped. The built-in author/vacation/assigned
// filters use this same shape, so a capacity check can be added later without
// restructuring the expansion loop.
type FilterFunc func(login string) *FindReviewerError

// candidateReviewers expands the requested names (usernames, `@user`,
// `org/team`, ad-hoc groups, team names) into a deduplicated set of concrete
// usernames to choose a reviewer from.
//
// Expansion runs over an explicit worklist with a seen-set per group name, so
// cyclic group definitions terminate: a group is expanded at most once per
// call and re-encountering it is silently skipped. Candidate order does not
// reflect input order.
func candidateReviewers(
	teams *types.Teams,
	cfg *config.AssignConfig,
	issue *types.Issue,
	names []string,
	extra []FilterFunc,
) (CandidateSet, *FindReviewerError) {
	candidates := make(CandidateSet)
	// Groups already expanded, to avoid cycles and double expansion.
	seen := make(map[string]bool)
	// Worklist of names to expand; group members are pushed back onto it.
	worklist := make([]string, len(names))
	copy(worklist, names)

	// Track who was filtered out, and why, for user-facing diagnostics.
	var filtered []string
	reasons := make(map[string]*FindReviewerError)

	orgPrefix := issue.Org + "/"

	filters := append(builtinFilters(cfg, issue), extra...)
	filter := func(login string) bool {
		for _, f := range filters {
			if reason := f(login); reason != nil {
				filtered = append(filtered, login)
				reasons[login] = reason
				return false
			}
		}
		return true
	}

	for len(worklist) > 0 {
		name := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		name = strings.TrimPrefix(name, "@")

		// The ghost placeholder always short-circuits as a valid singleton
		// result, bypassing every filter.
		if strings.EqualFold(name, ghostUser) {
			return CandidateSet{ghostUser: ghostUser}, nil
		}

		// Try ad-hoc groups first. Allow `org/compiler` to match `compiler`.
		// Members go back onto the worklist unfiltered: each is resolved in
		// full on its own turn, so nested groups and a ghost member are
		// handled the same as top-level names.
		maybeGroup := strings.TrimPrefix(name, orgPrefix)
		if members, ok := cfg.AdhocGroups[maybeGroup]; ok {
			if !seen[maybeGroup] {
				seen[maybeGroup] = true
				worklist = append(worklist, members...)
			}
			continue
		}

		// Check for a team name, either bare (`rustdoc`), org-qualified
		// (`org/rustdoc`), or label-style (`t-rustdoc`). Only direct team
		// members are used; subteam relationships are ignored.
		maybeTeam := strings.TrimPrefix(strings.TrimPrefix(maybeGroup, "t-"), "T-")
		team, ok := teams.Teams[maybeTeam]
		if !ok {
			team, ok = teams.Teams[maybeGroup]
		}
		if ok {
			for _, member := range team.Members {
				if filter(member.Login) {
					candidates.Add(member.Login)
				}
			}
			continue
		}

		// A slash-qualified name that matched nothing is a misconfigured or
		// mistyped team request. This is fatal to the resolution.
		if strings.Contains(name, "/") {
			return nil, teamNotFoundError(name)
		}

		// Assume it is a user.
		if filter(name) {
			candidates.Add(name)
		}
	}

	if len(candidates) == 0 {
		initial := make([]string, len(names))
		copy(initial, names)
		if len(filtered) == 0 {
			return nil, noReviewerError(initial)
		}
		slog.Warn("All candidate reviewers were filtered out",
			"issue", issue.GlobalID(), "initial", initial, "reasons", reasonSummary(reasons))
		return nil, allFilteredError(initial, filtered)
	}
	return candidates, nil
}

// builtinFilters returns the currently-active exclusion rules: PR author,
// vacation list, and existing assignees.
func builtinFilters(cfg *config.AssignConfig, issue *types.Issue) []FilterFunc {
	return []FilterFunc{
		func(login string) *FindReviewerError {
			if strings.EqualFold(login, issue.User.Login) {
				return &FindReviewerError{Reason: ReasonReviewerIsPRAuthor, Username: login}
			}
			return nil
		},
		func(login string) *FindReviewerError {
			if cfg.IsOnVacation(login) {
				return &FindReviewerError{Reason: ReasonReviewerOnVacation, Username: login}
			}
			return nil
		},
		func(login string) *FindReviewerError {
			if issue.ContainsAssignee(login) {
				return &FindReviewerError{Reason: ReasonReviewerAlreadyAssigned, Username: login}
			}
			return nil
		},
	}
}

// reasonSummary flattens the per-user drop reasons for logging.
func reasonSummary(reasons map[string]*FindReviewerError) map[string]FilterReason {
	out := make(map[string]FilterReason, len(reasons))
	for login, err := range reasons {
		out[login] = err.Reason
	}
	return out
}
