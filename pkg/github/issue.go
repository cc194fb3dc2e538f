package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codeGROOVE-dev/auto-assign/pkg/types"
)

const perPage = 100

// Issue fetches an issue or pull request.
func (c *Client) Issue(ctx context.Context, org, repo string, number int) (*types.Issue, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d", apiBase, org, repo, number)
	resp, err := c.doRequest(ctx, http.MethodGet, url, nil) //nolint:bodyclose // closed via drainAndCloseBody
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch issue %s/%s#%d: status %d", org, repo, number, resp.StatusCode)
	}

	var raw struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		State string `json:"state"`
		User  struct {
			Login string `json:"login"`
		} `json:"user"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Assignees []struct {
			Login string `json:"login"`
		} `json:"assignees"`
		PullRequest *struct{} `json:"pull_request"`
		Number      int       `json:"number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode issue: %w", err)
	}

	issue := &types.Issue{
		Number:      raw.Number,
		Title:       raw.Title,
		Body:        raw.Body,
		State:       raw.State,
		Org:         org,
		Repo:        repo,
		User:        types.User{Login: raw.User.Login},
		PullRequest: raw.PullRequest != nil,
	}
	for _, l := range raw.Labels {
		issue.Labels = append(issue.Labels, types.Label{Name: l.Name})
	}
	for _, a := range raw.Assignees {
		issue.Assignees = append(issue.Assignees, types.User{Login: a.Login})
	}
	return issue, nil
}

// Diff returns the changed files of a pull request with their diff text.
// Fails if the issue is not a pull request.
func (c *Client) Diff(ctx context.Context, issue *types.Issue) ([]types.FileDiff, error) {
	if !issue.IsPR() {
		return nil, fmt.Errorf("%s: %w", issue.GlobalID(), ErrNotAPullRequest)
	}

	var diff []types.FileDiff
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			apiBase, issue.Org, issue.Repo, issue.Number, perPage, page)
		resp, err := c.doRequest(ctx, http.MethodGet, url, nil) //nolint:bodyclose // closed via drainAndCloseBody
		if err != nil {
			return nil, fmt.Errorf("failed to fetch PR files: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			drainAndCloseBody(resp.Body)
			return nil, fmt.Errorf("failed to fetch files for %s: status %d", issue.GlobalID(), resp.StatusCode)
		}

		var files []struct {
			Filename string `json:"filename"`
			Patch    string `json:"patch"`
		}
		err = json.NewDecoder(resp.Body).Decode(&files)
		drainAndCloseBody(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode PR files: %w", err)
		}

		for _, f := range files {
			diff = append(diff, types.FileDiff{Path: f.Filename, Diff: f.Patch})
		}
		if len(files) < perPage {
			break
		}
	}
	return diff, nil
}

// SetAssignee assigns the issue to the given user. GitHub silently drops
// assignees it considers invalid, so the response is checked and
// ErrInvalidAssignee returned when the user did not stick.
func (c *Client) SetAssignee(ctx context.Context, issue *types.Issue, login string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/assignees", apiBase, issue.Org, issue.Repo, issue.Number)
	payload := map[string]any{"assignees": []string{login}}

	resp, err := c.doRequest(ctx, http.MethodPost, url, payload) //nolint:bodyclose // closed via drainAndCloseBody
	if err != nil {
		return fmt.Errorf("failed to set assignee: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("failed to set assignee: status %d (could not read body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("failed to set assignee: status %d: %s", resp.StatusCode, string(body))
	}

	var updated struct {
		Assignees []struct {
			Login string `json:"login"`
		} `json:"assignees"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return fmt.Errorf("failed to decode assignee response: %w", err)
	}
	for _, a := range updated.Assignees {
		if strings.EqualFold(a.Login, login) {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", login, ErrInvalidAssignee)
}

// RemoveAssignees removes the selected assignees from an issue.
func (c *Client) RemoveAssignees(ctx context.Context, issue *types.Issue, sel types.Selection) error {
	var logins []string
	if sel.All() {
		for _, a := range issue.Assignees {
			logins = append(logins, a.Login)
		}
	} else {
		logins = []string{sel.User()}
	}
	if len(logins) == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/assignees", apiBase, issue.Org, issue.Repo, issue.Number)
	payload := map[string]any{"assignees": logins}

	resp, err := c.doRequest(ctx, http.MethodDelete, url, payload) //nolint:bodyclose // closed via drainAndCloseBody
	if err != nil {
		return fmt.Errorf("failed to remove assignees: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to remove assignees from %s: status %d", issue.GlobalID(), resp.StatusCode)
	}
	return nil
}

// PostComment posts a comment on an issue.
func (c *Client) PostComment(ctx context.Context, issue *types.Issue, body string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", apiBase, issue.Org, issue.Repo, issue.Number)
	payload := map[string]any{"body": body}

	resp, err := c.doRequest(ctx, http.MethodPost, url, payload) //nolint:bodyclose // closed via drainAndCloseBody
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("failed to post comment on %s: status %d", issue.GlobalID(), resp.StatusCode)
	}
	return nil
}

// EditBody replaces the issue body. Used by the editable-comment state store.
func (c *Client) EditBody(ctx context.Context, issue *types.Issue, body string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d", apiBase, issue.Org, issue.Repo, issue.Number)
	payload := map[string]any{"body": body}

	resp, err := c.doRequest(ctx, http.MethodPatch, url, payload) //nolint:bodyclose // closed via drainAndCloseBody
	if err != nil {
		return fmt.Errorf("failed to edit issue body: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to edit body of %s: status %d", issue.GlobalID(), resp.StatusCode)
	}
	return nil
}

// AddLabels adds labels to an issue. Labels that do not exist in the
// repository are skipped and reported via UnknownLabelsError; the rest are
// still applied.
func (c *Client) AddLabels(ctx context.Context, issue *types.Issue, labels []types.Label) error {
	var known, unknown []string
	for _, label := range labels {
		exists, err := c.labelExists(ctx, issue.Org, issue.Repo, label.Name)
		if err != nil {
			return err
		}
		if exists {
			known = append(known, label.Name)
		} else {
			unknown = append(unknown, label.Name)
		}
	}

	if len(known) > 0 {
		url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/labels", apiBase, issue.Org, issue.Repo, issue.Number)
		payload := map[string]any{"labels": known}

		resp, err := c.doRequest(ctx, http.MethodPost, url, payload) //nolint:bodyclose // closed via drainAndCloseBody
		if err != nil {
			return fmt.Errorf("failed to add labels: %w", err)
		}
		drainAndCloseBody(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to add labels to %s: status %d", issue.GlobalID(), resp.StatusCode)
		}
	}

	if len(unknown) > 0 {
		return &UnknownLabelsError{Labels: unknown}
	}
	return nil
}

// labelExists checks whether a label is defined in the repository.
func (c *Client) labelExists(ctx context.Context, org, repo, name string) (bool, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/labels/%s", apiBase, org, repo, name)
	resp, err := c.doRequest(ctx, http.MethodGet, url, nil) //nolint:bodyclose // closed via drainAndCloseBody
	if err != nil {
		return false, fmt.Errorf("failed to check label %q: %w", name, err)
	}
	defer drainAndCloseBody(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("failed to check label %q: status %d", name, resp.StatusCode)
	}
}

// Teams fetches the team directory snapshot, cached for a short interval.
func (c *Client) Teams(ctx context.Context) (*types.Teams, error) {
	if cached, ok := c.cache.Get("teams"); ok {
		if teams, ok := cached.(*types.Teams); ok {
			return teams, nil
		}
	}

	resp, err := c.doRequest(ctx, http.MethodGet, c.teamsURL, nil) //nolint:bodyclose // closed via drainAndCloseBody
	if err != nil {
		return nil, fmt.Errorf("failed to fetch team directory: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch team directory: status %d", resp.StatusCode)
	}

	var raw struct {
		Teams map[string]struct {
			Name    string `json:"name"`
			Members []struct {
				GitHub string `json:"github"`
			} `json:"members"`
		} `json:"teams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode team directory: %w", err)
	}

	teams := &types.Teams{Teams: make(map[string]types.Team, len(raw.Teams))}
	for name, t := range raw.Teams {
		team := types.Team{Name: t.Name}
		for _, m := range t.Members {
			team.Members = append(team.Members, types.TeamMember{Login: m.GitHub})
		}
		teams.Teams[name] = team
	}

	c.cache.Set("teams", teams)
	slog.Info("Fetched team directory", "teams", len(teams.Teams))
	return teams, nil
}

// IsTeamMember reports whether the login appears in any team in the directory.
func (c *Client) IsTeamMember(ctx context.Context, login string) (bool, error) {
	teams, err := c.Teams(ctx)
	if err != nil {
		return false, err
	}
	for _, team := range teams.Teams {
		for _, member := range team.Members {
			if strings.EqualFold(member.Login, login) {
				return true, nil
			}
		}
	}
	return false, nil
}
