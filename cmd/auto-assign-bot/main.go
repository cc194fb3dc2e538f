// Command auto-assign-bot is a GitHub App bot that auto-assigns reviewers to
// newly opened pull requests, driven by the sprinkler event feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/auto-assign/pkg/assign"
	"github.com/codeGROOVE-dev/auto-assign/pkg/config"
	"github.com/codeGROOVE-dev/auto-assign/pkg/github"
	"github.com/codeGROOVE-dev/auto-assign/pkg/workqueue"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	// GitHub App authentication flags.
	appID      = flag.String("app-id", "", "GitHub App ID for authentication")
	appKeyPath = flag.String("app-key-path", "", "Path to GitHub App private key file")

	// Behavior flags.
	org        = flag.String("org", "", "GitHub organization to monitor")
	configPath = flag.String("config", "auto-assign.toml", "Path to the assignment configuration file")
	dryRun     = flag.Bool("dry-run", false, "Log decisions without applying assignments")
)

const (
	maxProcessedPRs      = 10000          // Maximum entries in the processed-PR set
	processedPRRetention = 24 * time.Hour // How long processed PRs are remembered when pruning
)

// Bot wires the tracker client, the assignment engine, and metrics together.
type Bot struct {
	client   *github.Client
	assigner *assign.Assigner
	metrics  *MetricsCollector
	org      string
	dryRun   bool

	// The event feed carries no action field, so every push or label change
	// on a PR arrives as another pull_request event. Auto-assignment must run
	// once per PR, or an unassignable PR would collect a fresh no-reviewer
	// welcome on every event.
	processedMu  sync.Mutex
	processedPRs map[string]time.Time
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "GitHub App bot that automatically assigns reviewers to new PRs.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_ID       - GitHub App ID\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY      - Secret name in Google Secret Manager for private key\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY_PATH - Path to GitHub App private key file\n")
		fmt.Fprintf(os.Stderr, "  DATABASE_URL        - Optional Postgres URL for assignment tracking\n")
		fmt.Fprintf(os.Stderr, "  PORT                - HTTP server port (default: 8080)\n")
	}
	flag.Parse()

	// Set up structured logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Optional .env for local runs.
	_ = godotenv.Load()

	// Resolve credentials.
	effectiveAppID := *appID
	effectiveAppKey := *appKeyPath
	if effectiveAppID == "" {
		effectiveAppID = os.Getenv("GITHUB_APP_ID")
	}
	if effectiveAppKey == "" {
		effectiveAppKey = os.Getenv("GITHUB_APP_KEY_PATH")
	}
	if effectiveAppID == "" {
		slog.Error("GitHub App ID is required")
		slog.Info("Set via --app-id flag or GITHUB_APP_ID environment variable")
		os.Exit(1)
	}
	if effectiveAppKey == "" {
		slog.Info("No GITHUB_APP_KEY_PATH provided, will attempt GITHUB_APP_KEY from Google Secret Manager")
	}
	if *org == "" {
		slog.Error("Organization is required, set via --org")
		os.Exit(1)
	}

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	client, err := github.New(ctx, github.Config{
		UseAppAuth:  true,
		AppID:       effectiveAppID,
		AppKeyPath:  effectiveAppKey,
		TeamsURL:    cfg.TeamsURL,
		Org:         *org,
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		slog.Error("Failed to create GitHub client", "error", err)
		os.Exit(1)
	}

	assigner := assign.New(client, cfg)
	if *dryRun {
		assigner.SetDryRun(true)
	}

	// Optional assignment tracking.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		queue, err := workqueue.Open(ctx, dbURL)
		if err != nil {
			slog.Error("Failed to open work queue", "error", err)
			os.Exit(1)
		}
		defer queue.Close()
		assigner.SetRecorder(queue)
		slog.Info("Assignment tracking enabled")
	}

	bot := &Bot{
		client:       client,
		assigner:     assigner,
		metrics:      NewMetricsCollector(),
		org:          *org,
		dryRun:       *dryRun,
		processedPRs: make(map[string]time.Time),
	}

	go bot.serveHealth()

	monitor := newSprinklerMonitor(bot, *org)
	if err := monitor.start(ctx); err != nil {
		slog.Error("Failed to start event monitor", "error", err)
		os.Exit(1)
	}

	slog.Info("Bot started", "org", *org, "dry_run", *dryRun)
	<-ctx.Done()
}

var prURLRe = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)

// processPR runs auto-assignment for one PR event.
func (b *Bot) processPR(ctx context.Context, url string) error {
	eventID := uuid.NewString()
	log := slog.With("event_id", eventID, "url", url)

	m := prURLRe.FindStringSubmatch(url)
	if m == nil {
		log.Warn("Ignoring event with unparseable PR URL")
		return nil
	}
	number, err := strconv.Atoi(m[3])
	if err != nil {
		return fmt.Errorf("invalid PR number in %q: %w", url, err)
	}
	owner, repo := m[1], m[2]

	issue, err := b.client.Issue(ctx, owner, repo, number)
	if err != nil {
		return fmt.Errorf("failed to fetch PR: %w", err)
	}
	b.metrics.RecordPRSeen(owner, repo, number)

	if !issue.IsOpen() || !issue.IsPR() {
		log.Info("Skipping event, not an open PR")
		return nil
	}

	if b.dryRun {
		diff, err := b.client.Diff(ctx, issue)
		if err != nil {
			return err
		}
		assignee, source, err := b.assigner.DetermineAssignee(ctx, issue, diff)
		if err != nil {
			return err
		}
		log.Info("Dry run decision", "assignee", assignee, "source", source.String())
		return nil
	}

	if b.alreadyProcessed(url) {
		log.Info("Skipping event, PR already handled")
		return nil
	}

	before := len(issue.Assignees)
	if err := b.assigner.HandleNewPR(ctx, issue); err != nil {
		return err
	}
	b.markProcessed(url)
	if len(issue.Assignees) > before {
		b.metrics.RecordPRModified(owner, repo, number)
	}
	return nil
}

// alreadyProcessed reports whether auto-assignment already ran for this PR.
func (b *Bot) alreadyProcessed(url string) bool {
	b.processedMu.Lock()
	defer b.processedMu.Unlock()
	_, ok := b.processedPRs[url]
	return ok
}

// markProcessed records that auto-assignment ran for this PR, pruning stale
// entries to keep the set bounded.
func (b *Bot) markProcessed(url string) {
	b.processedMu.Lock()
	defer b.processedMu.Unlock()
	b.processedPRs[url] = time.Now()
	if len(b.processedPRs) > maxProcessedPRs {
		cutoff := time.Now().Add(-processedPRRetention)
		for u, at := range b.processedPRs {
			if at.Before(cutoff) {
				delete(b.processedPRs, u)
			}
		}
	}
}
