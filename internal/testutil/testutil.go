// Package testutil provides shared test helpers for databases, engines and
// inbox directories.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "subtrack-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestEngine returns an engine with the default thresholds.
func TestEngine(t *testing.T) *detection.Engine {
	t.Helper()
	e, err := detection.NewEngine(detection.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// FixedClock returns a clock stuck at the given YYYY-MM-DD date, noon UTC.
func FixedClock(t *testing.T, date string) func() time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		t.Fatal(err)
	}
	d = d.Add(12 * time.Hour)
	return func() time.Time { return d }
}

// TestInbox creates a temporary inbox directory.
func TestInbox(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
