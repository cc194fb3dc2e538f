package github

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAssignee is returned by SetAssignee when GitHub refuses the user.
// Only org members with at least the repository "read" role, users with write
// permissions, or people who have commented on the issue may be assigned.
// This is an expected, recoverable condition: the caller falls back to the
// claimed-by workflow.
var ErrInvalidAssignee = errors.New("user cannot be assigned to this issue")

// ErrNotAPullRequest is returned by Diff when the target issue is not a PR.
var ErrNotAPullRequest = errors.New("issue is not a pull request")

// UnknownLabelsError is returned by AddLabels when one or more labels do not
// exist in the repository. The remaining labels are still applied.
type UnknownLabelsError struct {
	Labels []string
}

// Error implements the error interface.
func (e *UnknownLabelsError) Error() string {
	return fmt.Sprintf("unknown labels: %s", strings.Join(e.Labels, ", "))
}
