// Command auto-assign runs reviewer assignment for a single pull request.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/auto-assign/pkg/assign"
	"github.com/codeGROOVE-dev/auto-assign/pkg/config"
	"github.com/codeGROOVE-dev/auto-assign/pkg/github"
	"github.com/codeGROOVE-dev/auto-assign/pkg/types"

	"github.com/joho/godotenv"
)

var (
	prRef      = flag.String("pr", "", "Pull request URL (e.g., https://github.com/owner/repo/pull/123 or owner/repo#123)")
	configPath = flag.String("config", "auto-assign.toml", "Path to the assignment configuration file")
	token      = flag.String("token", "", "GitHub token (defaults to GITHUB_TOKEN or gh auth token)")
	dryRun     = flag.Bool("dry-run", false, "Resolve the assignee but do not apply anything")
	asUser     = flag.String("as", "", "Act as a comment from this user (requires -command)")
	command    = flag.String("command", "", "Handle a comment command (e.g. 'r? compiler') instead of new-PR auto-assignment")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Optional .env for local runs.
	_ = godotenv.Load()

	if err := run(context.Background()); err != nil {
		slog.Error("auto-assign failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	org, repo, number, err := parsePRRef(*prRef)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	effectiveToken := *token
	if effectiveToken == "" {
		effectiveToken = os.Getenv("GITHUB_TOKEN")
	}
	client, err := github.New(ctx, github.Config{
		Token:       effectiveToken,
		TeamsURL:    cfg.TeamsURL,
		Org:         org,
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		return err
	}

	issue, err := client.Issue(ctx, org, repo, number)
	if err != nil {
		return err
	}

	assigner := assign.New(client, cfg)

	if *command != "" {
		if *asUser == "" {
			return fmt.Errorf("-command requires -as <user>")
		}
		cmd := assign.ParseComment(cfg.BotLogin, *command)
		if cmd == nil {
			return fmt.Errorf("no assignment command found in %q", *command)
		}
		return assigner.HandleCommand(ctx, issue, types.User{Login: *asUser}, cmd)
	}

	if *dryRun {
		assigner.SetDryRun(true)
		diff, err := client.Diff(ctx, issue)
		if err != nil {
			return err
		}
		assignee, source, err := assigner.DetermineAssignee(ctx, issue, diff)
		if err != nil {
			return err
		}
		if assignee == "" {
			fmt.Printf("%s: no assignee could be determined\n", issue.GlobalID())
		} else {
			fmt.Printf("%s: would assign @%s (source: %s)\n", issue.GlobalID(), assignee, source)
		}
		return nil
	}

	return assigner.HandleNewPR(ctx, issue)
}

var prRefRe = regexp.MustCompile(`^(?:https://github\.com/)?([^/\s]+)/([^/\s#]+)(?:/pull/|#)(\d+)$`)

// parsePRRef accepts "https://github.com/owner/repo/pull/123" or "owner/repo#123".
func parsePRRef(ref string) (org, repo string, number int, err error) {
	if ref == "" {
		return "", "", 0, fmt.Errorf("-pr is required")
	}
	m := prRefRe.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid PR reference %q", ref)
	}
	number, err = strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number in %q: %w", ref, err)
	}
	return m[1], m[2], number, nil
}
