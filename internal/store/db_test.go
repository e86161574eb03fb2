package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sub", "jobs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.InsertJob(ctx, Job{ID: "j1", Source: "/a", Dest: "/b"}); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	j, err := db.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != StatusPending || j.Source != "/a" || j.Dest != "/b" {
		t.Errorf("unexpected job %+v", j)
	}
	if j.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	if err := db.InsertJob(ctx, Job{ID: "j1", Source: "/a", Dest: "/b"}); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestGetUnknown(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetJob(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := db.FinishJob(context.Background(), Job{ID: "nope", Status: StatusDone}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimNextFIFO(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"first", "second", "third"} {
		if err := db.InsertJob(ctx, Job{ID: id, Source: "/s", Dest: "/d"}); err != nil {
			t.Fatal(err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		j, ok, err := db.ClaimNext(ctx)
		if err != nil || !ok {
			t.Fatalf("ClaimNext: ok=%v err=%v", ok, err)
		}
		if j.ID != want || j.Status != StatusRunning {
			t.Errorf("claimed %s (%s), want %s running", j.ID, j.Status, want)
		}
	}
	if _, ok, err := db.ClaimNext(ctx); ok || err != nil {
		t.Errorf("expected empty queue, ok=%v err=%v", ok, err)
	}
}

func TestFinishAndResetRunning(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := db.InsertJob(ctx, Job{ID: id, Source: "/s", Dest: "/d"}); err != nil {
			t.Fatal(err)
		}
	}
	a, _, _ := db.ClaimNext(ctx)
	a.Status, a.ErrKind, a.ErrMsg = StatusFailed, "copy failed", "disk full"
	if err := db.FinishJob(ctx, a); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	if _, _, err := db.ClaimNext(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := db.ResetRunning(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetRunning = %d, %v; want 1", n, err)
	}

	jobs, err := db.ListJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs", len(jobs))
	}
	if jobs[0].Status != StatusFailed || jobs[0].ErrMsg != "disk full" {
		t.Errorf("job a = %+v", jobs[0])
	}
	if jobs[1].Status != StatusPending {
		t.Errorf("job b status = %s, want pending", jobs[1].Status)
	}
	if !jobs[0].Status.Finished() || jobs[1].Status.Finished() {
		t.Error("Finished() mismatch")
	}
}

func TestReopenKeepsJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InsertJob(context.Background(), Job{ID: "keep", Source: "/s", Dest: "/d"}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.GetJob(context.Background(), "keep"); err != nil {
		t.Errorf("job lost across reopen: %v", err)
	}
}
