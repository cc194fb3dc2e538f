package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	serverReadTimeout = 10 * time.Second
	serverIdleTimeout = 60 * time.Second
)

// MetricsCollector tracks event-processing metrics for the health endpoint.
type MetricsCollector struct {
	lastEvent         time.Time
	uniquePRsSeen     map[string]bool
	uniquePRsModified map[string]bool
	totalEvents       int64
	mu                sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		uniquePRsSeen:     make(map[string]bool),
		uniquePRsModified: make(map[string]bool),
	}
}

// RecordPRSeen records a PR event that was processed.
func (m *MetricsCollector) RecordPRSeen(owner, repo string, number int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniquePRsSeen[fmt.Sprintf("%s/%s#%d", owner, repo, number)] = true
	m.lastEvent = time.Now()
	m.totalEvents++
}

// RecordPRModified records a PR whose assignees were changed.
func (m *MetricsCollector) RecordPRModified(owner, repo string, number int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniquePRsModified[fmt.Sprintf("%s/%s#%d", owner, repo, number)] = true
}

// Stats represents collected metrics.
type Stats struct {
	LastEvent   time.Time
	PRsSeen     int
	PRsModified int
	TotalEvents int64
}

// GetStats returns the current statistics.
func (m *MetricsCollector) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		PRsSeen:     len(m.uniquePRsSeen),
		PRsModified: len(m.uniquePRsModified),
		LastEvent:   m.lastEvent,
		TotalEvents: m.totalEvents,
	}
}

// serveHealth runs the HTTP server for health checks and metrics.
func (b *Bot) serveHealth() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintln(w, "ok"); err != nil {
			slog.Error("Failed to write health response", "error", err)
		}
	})

	mux.HandleFunc("/metricsz", func(w http.ResponseWriter, _ *http.Request) {
		stats := b.metrics.GetStats()
		response := fmt.Sprintf("%d events, %d PRs seen, %d PRs modified (last event: %s)\n",
			stats.TotalEvents, stats.PRsSeen, stats.PRsModified, stats.LastEvent.Format(time.RFC3339))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(response)); err != nil {
			slog.Error("Failed to write metrics response", "error", err)
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Auto Assign Service\nHealth endpoint: /healthz\n")); err != nil {
			slog.Error("Failed to write response", "error", err)
		}
	})

	slog.Info("Starting health server", "component", "server", "port", port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverReadTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to start health server", "error", err)
	}
}
