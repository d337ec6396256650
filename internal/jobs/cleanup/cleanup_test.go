package cleanup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type storedObject struct {
	key      string
	modified time.Time
}

type fakeObjectStore struct {
	objects   []storedObject
	deleteErr map[string]error
	deleted   []string
}

func (f *fakeObjectStore) ListOlderThan(_ context.Context, prefix string, cutoff time.Time) ([]string, error) {
	var keys []string
	for _, obj := range f.objects {
		if strings.HasPrefix(obj.key, prefix) && obj.modified.Before(cutoff) {
			keys = append(keys, obj.key)
		}
	}
	return keys, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func TestRunDeletesPhotosOlderThanRetention(t *testing.T) {
	now := time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeObjectStore{objects: []storedObject{
		{key: "scans/u1/glow_analysis/a.jpg", modified: now.Add(-31 * 24 * time.Hour)},
		{key: "scans/u1/glow_analysis/b.jpg", modified: now.Add(-29 * 24 * time.Hour)},
		{key: "other/c.jpg", modified: now.Add(-90 * 24 * time.Hour)},
	}}

	job := NewScanPhotoCleanupJob(store, "scans/", 30*24*time.Hour, nil)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run cleanup job: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "scans/u1/glow_analysis/a.jpg" {
		t.Fatalf("unexpected deletions: %v", store.deleted)
	}
}

func TestRunContinuesPastDeleteFailures(t *testing.T) {
	now := time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	store := &fakeObjectStore{
		objects: []storedObject{
			{key: "scans/a.jpg", modified: old},
			{key: "scans/b.jpg", modified: old},
		},
		deleteErr: map[string]error{"scans/a.jpg": errors.New("denied")},
	}

	job := NewScanPhotoCleanupJob(store, "scans/", 0, nil)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run cleanup job: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "scans/b.jpg" {
		t.Fatalf("expected remaining photo to be deleted, got %v", store.deleted)
	}
}

func TestRunWithoutStorageIsNoop(t *testing.T) {
	if err := New().Run(context.Background()); err != nil {
		t.Fatalf("expected noop, got %v", err)
	}
}
