package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/vigil/internal/classifier"
	"github.com/andresmejia3/vigil/internal/history"
	"github.com/andresmejia3/vigil/internal/report"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func sessionExport(id string, start time.Time) report.Export {
	a := start.Add(2 * time.Second)
	b := start.Add(40 * time.Second)
	end := start.Add(60 * time.Second)
	return report.Export{
		SessionID: id,
		SubjectID: "1",
		StartedAt: start,
		EndedAt:   end,
		Summary:   report.Summarize(time.Minute, 18, 1, 35),
		Intervals: []history.Interval{
			{State: classifier.Unknown, Start: start, End: a, Duration: 2},
			{State: classifier.Active, Start: a, End: b, Duration: 38},
			{State: classifier.Sleeping, Start: b, End: end, Duration: 20},
		},
	}
}

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("vigil_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	t0 := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

	// --- Export as a report sink ---
	first := sessionExport("sess-a", t0)
	if err := s.Export(ctx, first); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	// Re-export replaces intervals instead of duplicating them
	if err := s.Export(ctx, first); err != nil {
		t.Fatalf("second Export failed: %v", err)
	}

	ivs, err := s.GetSessionIntervals(ctx, "sess-a")
	if err != nil {
		t.Fatalf("GetSessionIntervals failed: %v", err)
	}
	if len(ivs) != 3 {
		t.Fatalf("Expected 3 intervals, got %d", len(ivs))
	}
	if ivs[2].State != classifier.Sleeping {
		t.Errorf("Expected last interval Sleeping, got %s", ivs[2].State)
	}
	if !ivs[0].Start.Equal(t0) {
		t.Errorf("Expected first interval to start at %v, got %v", t0, ivs[0].Start)
	}

	// --- Row-at-a-time path ---
	second := sessionExport("sess-b", t0.Add(time.Hour))
	if err := s.SaveSession(ctx, second); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := s.InsertInterval(ctx, "sess-b", second.Intervals[1]); err != nil {
		t.Fatalf("InsertInterval failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "sess-b" {
		t.Errorf("Expected newest session first, got %s", sessions[0].ID)
	}
	if sessions[0].IntervalCount != 1 || sessions[1].IntervalCount != 3 {
		t.Errorf("Unexpected interval counts: %d, %d", sessions[0].IntervalCount, sessions[1].IntervalCount)
	}
	if sessions[1].Summary.TotalBlinks != 18 || sessions[1].Summary.Recommendation != report.RecommendContinue {
		t.Errorf("Summary not persisted: %+v", sessions[1].Summary)
	}

	if _, err := s.GetSessionIntervals(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown session, got %v", err)
	}

	// --- Reset drops everything; New re-migrates ---
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Re-init after reset failed: %v", err)
	}
	defer s2.Close(ctx)
	sessions, err = s2.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions after reset failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected empty archive after reset, got %d", len(sessions))
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
