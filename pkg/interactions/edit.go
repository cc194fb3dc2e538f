// Package interactions manages bot-controlled state embedded in issue bodies.
// Assignment state for plain issues is tracked via a structured JSON marker
// hidden in an HTML comment, so that state survives even when the tracker's
// native assignee field cannot hold the real owner.
package interactions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeGROOVE-dev/auto-assign/pkg/github"
	"github.com/codeGROOVE-dev/auto-assign/pkg/types"
)

// EditIssueBody reads and writes one named bot section of an issue body.
// Sections are independent: two stores with different IDs do not interfere.
type EditIssueBody struct {
	issue *types.Issue
	id    string
}

// New creates a store for the given section ID (e.g. "ASSIGN").
func New(issue *types.Issue, id string) *EditIssueBody {
	return &EditIssueBody{issue: issue, id: id}
}

func (e *EditIssueBody) startSection() string {
	return fmt.Sprintf("<!-- AUTO_ASSIGN_%s_SECTION_START -->", e.id)
}

func (e *EditIssueBody) endSection() string {
	return fmt.Sprintf("<!-- AUTO_ASSIGN_%s_SECTION_END -->", e.id)
}

func (e *EditIssueBody) startData() string {
	return fmt.Sprintf("<!-- AUTO_ASSIGN_%s_DATA_START$$", e.id)
}

func (e *EditIssueBody) endData() string {
	return fmt.Sprintf("$$AUTO_ASSIGN_%s_DATA_END -->", e.id)
}

// CurrentData decodes the structured marker into v. Returns false when the
// issue body carries no marker for this section.
func (e *EditIssueBody) CurrentData(v any) (bool, error) {
	body := e.issue.Body
	start := strings.Index(body, e.startData())
	if start < 0 {
		return false, nil
	}
	rest := body[start+len(e.startData()):]
	end := strings.Index(rest, e.endData())
	if end < 0 {
		return false, fmt.Errorf("issue %s: unterminated data marker for section %s", e.issue.GlobalID(), e.id)
	}
	if err := json.Unmarshal([]byte(rest[:end]), v); err != nil {
		return false, fmt.Errorf("issue %s: invalid data marker for section %s: %w", e.issue.GlobalID(), e.id, err)
	}
	return true, nil
}

// Apply writes the section with the given visible text and structured data,
// replacing any previous section, and pushes the new body to the tracker.
func (e *EditIssueBody) Apply(ctx context.Context, client github.API, text string, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data marker: %w", err)
	}

	section := e.startSection() + "\n"
	if text != "" {
		section += text + "\n"
	}
	section += e.startData() + string(encoded) + e.endData() + "\n" + e.endSection()

	base := e.baseBody()
	body := base
	if body != "" {
		body += "\n\n"
	}
	body += section

	if err := client.EditBody(ctx, e.issue, body); err != nil {
		return err
	}
	// Keep the snapshot coherent for a subsequent CurrentData in this call.
	e.issue.Body = body
	return nil
}

// baseBody returns the issue body with this section removed.
func (e *EditIssueBody) baseBody() string {
	body := e.issue.Body
	start := strings.Index(body, e.startSection())
	if start < 0 {
		return strings.TrimRight(body, "\n ")
	}
	rest := body[start:]
	end := strings.Index(rest, e.endSection())
	if end < 0 {
		// Damaged section; drop everything from the start marker on.
		return strings.TrimRight(body[:start], "\n ")
	}
	after := rest[end+len(e.endSection()):]
	return strings.TrimRight(strings.TrimRight(body[:start], "\n ")+after, "\n ")
}
