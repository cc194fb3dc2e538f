package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sprinkler/pkg/client"
)

const (
	eventChannelSize     = 100              // Buffer size for event channel
	eventDedupWindow     = 5 * time.Second  // Time window for deduplicating events
	eventMapMaxSize      = 1000             // Maximum entries in event dedup map
	processMaxRetries    = 3                // Max retries for PR processing
	processMaxDelay      = 10 * time.Second // Max delay between processing retries
	maxReconnectAttempts = 100              // Max reconnection attempts
	reconnectBackoff     = 30 * time.Second // Initial backoff between reconnection attempts
	maxBackoff           = 5 * time.Minute  // Backoff cap
)

// sprinklerMonitor manages WebSocket event subscriptions for a single org.
type sprinklerMonitor struct {
	lastConnectedAt   time.Time
	bot               *Bot
	client            *client.Client
	eventChan         chan string          // PR URLs that need processing
	lastEventMap      map[string]time.Time // Last event per URL, for dedupe
	stopChan          chan struct{}
	org               string
	reconnectAttempts int
	isRunning         bool
	isConnected       bool
	mu                sync.RWMutex
}

// newSprinklerMonitor creates a new monitor for a specific org.
func newSprinklerMonitor(bot *Bot, org string) *sprinklerMonitor {
	return &sprinklerMonitor{
		bot:          bot,
		org:          org,
		eventChan:    make(chan string, eventChannelSize),
		lastEventMap: make(map[string]time.Time),
		stopChan:     make(chan struct{}),
	}
}

// start begins monitoring PR events for this org.
func (sm *sprinklerMonitor) start(ctx context.Context) error {
	sm.mu.Lock()
	if sm.isRunning {
		sm.mu.Unlock()
		slog.Info("Monitor already running", "component", "sprinkler", "org", sm.org)
		return nil
	}
	sm.isRunning = true
	sm.mu.Unlock()

	slog.Info("Starting event monitor", "component", "sprinkler", "org", sm.org)
	go sm.processEvents(ctx)
	go sm.manageConnection(ctx)
	return nil
}

// manageConnection restarts the WebSocket client whenever it gives up. The
// sprinkler client has its own internal reconnection with backoff; this loop
// only handles fatal exits.
func (sm *sprinklerMonitor) manageConnection(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		default:
		}

		err := sm.connectWebSocket(ctx)
		if err == nil {
			sm.mu.Lock()
			sm.reconnectAttempts = 0
			sm.mu.Unlock()
			continue
		}
		if errors.Is(err, context.Canceled) {
			return
		}

		sm.mu.Lock()
		sm.reconnectAttempts++
		attempts := sm.reconnectAttempts
		sm.mu.Unlock()

		if attempts >= maxReconnectAttempts {
			slog.Error("Max reconnection attempts reached, giving up", "component", "sprinkler", "org", sm.org, "attempts", attempts)
			return
		}

		backoff := reconnectBackoff * time.Duration(attempts)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		slog.Warn("WebSocket client gave up, will restart after backoff",
			"component", "sprinkler", "org", sm.org, "attempt", attempts, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case <-time.After(backoff):
		}
	}
}

// connectWebSocket establishes a WebSocket connection and blocks until the
// client exits.
func (sm *sprinklerMonitor) connectWebSocket(ctx context.Context) error {
	config := client.Config{
		ServerURL:    "wss://" + client.DefaultServerAddress + "/ws",
		Organization: sm.org,
		// TokenProvider allows dynamic token refresh instead of a static token.
		TokenProvider: func() (string, error) {
			token, err := sm.bot.client.Token(ctx)
			if err != nil {
				return "", fmt.Errorf("failed to get token: %w", err)
			}
			return token, nil
		},
		EventTypes:     []string{"pull_request"},
		UserEventsOnly: false,
		Verbose:        false,
		NoReconnect:    false,
		OnConnect: func() {
			sm.mu.Lock()
			sm.isConnected = true
			sm.lastConnectedAt = time.Now()
			sm.mu.Unlock()
			slog.Info("WebSocket connected", "component", "sprinkler", "org", sm.org)
		},
		OnDisconnect: func(err error) {
			sm.mu.Lock()
			wasConnected := sm.isConnected
			sm.isConnected = false
			sm.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) && wasConnected {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "org", sm.org, "error", err)
			}
		},
		OnEvent: func(event client.Event) {
			sm.handleEvent(event)
		},
	}

	wsClient, err := client.New(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	sm.mu.Lock()
	sm.client = wsClient
	sm.mu.Unlock()

	slog.Info("Starting WebSocket client", "component", "sprinkler", "org", sm.org)
	if err := wsClient.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handleEvent enqueues PR events for processing, deduplicating bursts.
func (sm *sprinklerMonitor) handleEvent(event client.Event) {
	if event.Type != "pull_request" {
		return
	}
	if event.URL == "" {
		slog.Warn("Received PR event with empty URL", "component", "sprinkler")
		return
	}
	// Only handle events for the monitored org.
	if !strings.HasPrefix(event.URL, "https://github.com/"+sm.org+"/") {
		return
	}

	sm.mu.Lock()
	now := time.Now()
	if last, ok := sm.lastEventMap[event.URL]; ok && now.Sub(last) < eventDedupWindow {
		sm.mu.Unlock()
		return
	}
	sm.lastEventMap[event.URL] = now
	// Keep the dedup map bounded.
	if len(sm.lastEventMap) > eventMapMaxSize {
		for url, last := range sm.lastEventMap {
			if now.Sub(last) > time.Hour {
				delete(sm.lastEventMap, url)
			}
		}
	}
	sm.mu.Unlock()

	select {
	case sm.eventChan <- event.URL:
	default:
		slog.Warn("Event channel full, dropping event", "component", "sprinkler", "url", event.URL)
	}
}

// processEvents consumes queued PR URLs and runs assignment for each.
func (sm *sprinklerMonitor) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case url := <-sm.eventChan:
			err := retry.Do(
				func() error { return sm.bot.processPR(ctx, url) },
				retry.Context(ctx),
				retry.Attempts(processMaxRetries),
				retry.MaxDelay(processMaxDelay),
				retry.LastErrorOnly(true),
			)
			if err != nil {
				slog.Error("Failed to process PR event", "component", "sprinkler", "url", url, "error", err)
			}
		}
	}
}

// stop halts the monitor.
func (sm *sprinklerMonitor) stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.isRunning {
		return
	}
	sm.isRunning = false
	close(sm.stopChan)
}
