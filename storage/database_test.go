package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	db, err := NewDatabase(filepath.Join(t.TempDir(), "nested", "history.db"), time.UTC, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	okID, err := db.StartRun(day(2026, 3, 1, 8))
	require.NoError(t, err)
	require.NoError(t, db.FinishRun(okID, day(2026, 3, 1, 9), nil))

	failID, err := db.StartRun(day(2026, 3, 2, 8))
	require.NoError(t, err)
	require.NoError(t, db.FinishRun(failID, day(2026, 3, 2, 9), errors.New("serverfault: boom")))

	runs, err := db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	require.Equal(t, failID, runs[0].ID)
	require.Equal(t, RunFailed, runs[0].Status)
	require.Equal(t, "serverfault: boom", runs[0].Error)

	require.Equal(t, okID, runs[1].ID)
	require.Equal(t, RunOK, runs[1].Status)
	require.Empty(t, runs[1].Error)
	require.True(t, runs[1].FinishedAt.Equal(day(2026, 3, 1, 9)))
}

func TestRecordAndListVisits(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun(day(2026, 3, 1, 8))
	require.NoError(t, err)

	_, err = db.RecordVisit(&Visit{
		RunID:          runID,
		Site:           "askubuntu",
		LoginPerformed: true,
		Confirmed:      true,
		Calendar:       "Visited 3 days",
		Duration:       1500 * time.Millisecond,
		VisitedAt:      day(2026, 3, 1, 8),
	})
	require.NoError(t, err)

	_, err = db.RecordVisit(&Visit{
		RunID:     runID,
		Site:      "serverfault",
		Error:     "profile page could not be confirmed",
		VisitedAt: day(2026, 3, 1, 8).Add(time.Minute),
	})
	require.NoError(t, err)

	visits, err := db.RecentVisits(10)
	require.NoError(t, err)
	require.Len(t, visits, 2)

	require.Equal(t, "serverfault", visits[0].Site)
	require.False(t, visits[0].Confirmed)
	require.NotEmpty(t, visits[0].Error)

	first := visits[1]
	require.Equal(t, "askubuntu", first.Site)
	require.Equal(t, runID, first.RunID)
	require.True(t, first.LoginPerformed)
	require.False(t, first.LoggedInBefore)
	require.True(t, first.Confirmed)
	require.Equal(t, "Visited 3 days", first.Calendar)
	require.Equal(t, 1500*time.Millisecond, first.Duration)

	limited, err := db.RecentVisits(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestStreak(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun(day(2026, 3, 1, 8))
	require.NoError(t, err)

	record := func(site string, at time.Time, confirmed bool) {
		_, err := db.RecordVisit(&Visit{RunID: runID, Site: site, Confirmed: confirmed, VisitedAt: at})
		require.NoError(t, err)
	}

	// askubuntu: 3..6 March, twice on the 5th
	for d := 3; d <= 6; d++ {
		record("askubuntu", day(2026, 3, d, 9), true)
	}
	record("askubuntu", day(2026, 3, 5, 20), true)
	// a failed visit on the 1st does not count
	record("askubuntu", day(2026, 3, 1, 9), false)

	// serverfault: gap on the 5th
	record("serverfault", day(2026, 3, 4, 9), true)
	record("serverfault", day(2026, 3, 6, 9), true)

	streak, err := db.Streak("askubuntu", day(2026, 3, 6, 23))
	require.NoError(t, err)
	require.Equal(t, 4, streak)

	// Not visited yet today: the streak still counts up to yesterday
	streak, err = db.Streak("askubuntu", day(2026, 3, 7, 6))
	require.NoError(t, err)
	require.Equal(t, 4, streak)

	// Missed a whole day
	streak, err = db.Streak("askubuntu", day(2026, 3, 8, 6))
	require.NoError(t, err)
	require.Equal(t, 0, streak)

	streak, err = db.Streak("serverfault", day(2026, 3, 6, 12))
	require.NoError(t, err)
	require.Equal(t, 1, streak)

	streak, err = db.Streak("stackoverflow", day(2026, 3, 6, 12))
	require.NoError(t, err)
	require.Equal(t, 0, streak)
}

func TestCountStreakMonthBoundary(t *testing.T) {
	today := day(2026, 3, 1, 10)
	dates := []string{"2026-03-01", "2026-02-28", "2026-02-27", "2026-02-25"}

	require.Equal(t, 3, countStreak(dates, today))
	require.Equal(t, 0, countStreak(nil, today))
}
