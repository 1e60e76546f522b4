package inbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/subtrack/internal/subservice"
	"github.com/starford/subtrack/internal/testutil"
)

const huluCSV = "date,description,amount\n" +
	"2025-06-10,Hulu,7.99\n" +
	"2025-07-10,Hulu,7.99\n" +
	"2025-08-10,Hulu,7.99\n"

func inboxTestEnv(t *testing.T, autoDetect bool) (*Inbox, *subservice.Service) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := subservice.New(testutil.TestDB(t), testutil.TestEngine(t), subservice.WithLogger(logger))
	in, err := New(Config{Enabled: true, Path: testutil.TestInbox(t), AutoDetect: autoDetect, Debounce: 50 * time.Millisecond}, svc, logger)
	if err != nil {
		t.Fatal(err)
	}
	return in, svc
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestConfigValidate(t *testing.T) {
	if err := (&Config{Enabled: true}).Validate(); err == nil {
		t.Error("enabled inbox without path should fail")
	}
	if err := (&Config{}).Validate(); err != nil {
		t.Errorf("disabled inbox: %v", err)
	}
	if err := (&Config{Enabled: true, Path: "x", Debounce: -time.Second}).Validate(); err == nil {
		t.Error("negative debounce should fail")
	}
}

func TestSync_ImportsAndMoves(t *testing.T) {
	in, svc := inboxTestEnv(t, true)
	ctx := context.Background()

	writeFile(t, filepath.Join(in.Root(), "june.csv"), huluCSV)
	writeFile(t, filepath.Join(in.Root(), "bad.csv"), "nothing,useful\n1,2\n")
	writeFile(t, filepath.Join(in.Root(), "notes.txt"), "ignored")

	n, err := in.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n != 1 {
		t.Errorf("processed = %d, want 1", n)
	}
	if !exists(filepath.Join(in.Root(), ProcessedDir, "june.csv")) {
		t.Error("june.csv not moved to processed/")
	}
	if !exists(filepath.Join(in.Root(), FailedDir, "bad.csv")) {
		t.Error("bad.csv not moved to failed/")
	}
	if !exists(filepath.Join(in.Root(), "notes.txt")) {
		t.Error("non-csv file should stay put")
	}

	subs, err := svc.ListSubscriptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].VendorKey != "hulu" {
		t.Errorf("auto-detect subscriptions = %+v", subs)
	}
}

func TestSync_DuplicateFileImportedOnce(t *testing.T) {
	in, svc := inboxTestEnv(t, false)
	ctx := context.Background()

	writeFile(t, filepath.Join(in.Root(), "june.csv"), huluCSV)
	if _, err := in.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(in.Root(), "june.csv"), huluCSV)
	if _, err := in.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	txns, err := svc.ListTransactions(ctx, "hulu", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 3 {
		t.Errorf("transactions = %d, want 3", len(txns))
	}
	entries, _ := os.ReadDir(filepath.Join(in.Root(), ProcessedDir))
	if len(entries) != 2 {
		t.Errorf("processed/ has %d files, want 2 (second renamed)", len(entries))
	}
	subs, _ := svc.ListSubscriptions(ctx)
	if len(subs) != 0 {
		t.Errorf("auto-detect off but got %d subscriptions", len(subs))
	}
}

func TestWatch_NewFileImported(t *testing.T) {
	in, svc := inboxTestEnv(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- in.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(in.Root(), "live.csv"), huluCSV)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(filepath.Join(in.Root(), ProcessedDir, "live.csv"))
	}, "live.csv not processed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		subs, err := svc.ListSubscriptions(context.Background())
		return err == nil && len(subs) == 1
	}, "auto-detect did not create a subscription")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop")
	}
}

func TestWatch_ImportsPendingAtStartup(t *testing.T) {
	in, _ := inboxTestEnv(t, false)
	writeFile(t, filepath.Join(in.Root(), "early.csv"), huluCSV)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Watch(ctx) //nolint:errcheck

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(filepath.Join(in.Root(), ProcessedDir, "early.csv"))
	}, "pending file not imported at startup")
}
