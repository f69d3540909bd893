package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "audit.db"), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewCreatesTable(t *testing.T) {
	d := setupDB(t)
	var name string
	err := d.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='downloads'").Scan(&name)
	if err != nil {
		t.Fatalf("table 'downloads' was not created: %v", err)
	}
}

func TestNewBadPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir", "audit.db"), nil)
	if err == nil {
		t.Error("expected error for unwritable path")
	}
}

func TestRecordAndRecent(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Name: "a.pdf", Outcome: "found", Bytes: 10, RemoteAddr: "10.0.0.1", CreatedAt: base},
		{Name: "ghost.pdf", Outcome: "not_found", CreatedAt: base.Add(time.Minute)},
		{Name: "b.zip", Outcome: "found", Bytes: 99, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := d.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := d.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "b.zip" || got[1].Name != "ghost.pdf" {
		t.Errorf("order = %s, %s", got[0].Name, got[1].Name)
	}
	if got[0].ID == "" {
		t.Error("ID should be generated")
	}
	if got[0].Bytes != 99 || got[0].Outcome != "found" {
		t.Errorf("entry = %+v", got[0])
	}
	if !got[1].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v", got[1].CreatedAt)
	}
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	before := time.Now().Add(-time.Second)
	if err := d.Record(ctx, Entry{Name: "x", Outcome: "found"}); err != nil {
		t.Fatal(err)
	}
	got, _ := d.Recent(ctx, 1)
	if len(got) != 1 || got[0].CreatedAt.Before(before) {
		t.Errorf("got %+v", got)
	}
}

func TestRecordDuplicateID(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	e := Entry{ID: "fixed", Name: "x", Outcome: "found"}
	if err := d.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := d.Record(ctx, e); err == nil {
		t.Error("expected primary key violation")
	}
}

func TestPrune(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	d.Record(ctx, Entry{Name: "old", Outcome: "found", CreatedAt: now.Add(-48 * time.Hour)})
	d.Record(ctx, Entry{Name: "new", Outcome: "found", CreatedAt: now})

	n, err := d.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	got, _ := d.Recent(ctx, 10)
	if len(got) != 1 || got[0].Name != "new" {
		t.Errorf("remaining = %+v", got)
	}
}

func TestStartRetention(t *testing.T) {
	d := setupDB(t)
	now := time.Now().UTC()
	d.Record(context.Background(), Entry{Name: "old", Outcome: "found", CreatedAt: now.Add(-72 * time.Hour)})
	d.Record(context.Background(), Entry{Name: "new", Outcome: "found", CreatedAt: now})

	ctx, cancel := context.WithCancel(context.Background())
	done := d.StartRetention(ctx, time.Hour, 24*time.Hour)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := d.Recent(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("startup prune did not run, entries = %d", len(got))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("retention worker did not stop")
	}
}
