package profile

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.json")
	doc := `{
		"users": {
			"bob": {
				"preferences": {"water_reminders": false},
				"quiet_hours": {"start": "22:00", "end": "07:00"}
			},
			"alice": {}
		}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	ids, err := s.UserIDs(ctx)
	if err != nil {
		t.Fatalf("UserIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"alice", "bob"}) {
		t.Fatalf("UserIDs = %v, want sorted [alice bob]", ids)
	}

	prefs, err := s.Preferences(ctx, "bob")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if prefs.Enabled(PrefWaterReminders) {
		t.Fatal("bob opted out of water reminders")
	}
	if !prefs.Enabled(PrefMealReminders) {
		t.Fatal("unset preference should default to enabled")
	}

	qh, err := s.QuietHours(ctx, "bob")
	if err != nil {
		t.Fatalf("QuietHours: %v", err)
	}
	if qh.Start != "22:00" || qh.End != "07:00" {
		t.Fatalf("QuietHours = %+v", qh)
	}
	if qh, _ := s.QuietHours(ctx, "alice"); !qh.IsZero() {
		t.Fatalf("alice has no window, got %+v", qh)
	}
	// Unknown users read as empty, never as an error.
	if qh, err := s.QuietHours(ctx, "ghost"); err != nil || !qh.IsZero() {
		t.Fatalf("ghost: %+v %v", qh, err)
	}
}

func TestFileStoreReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.json")
	if err := os.WriteFile(path, []byte(`{"users": {"u1": {}}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	next := `{"users": {"u1": {"preferences": {"nutrition_tips": false}}, "u2": {}}}`
	if err := os.WriteFile(path, []byte(next), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	ids, _ := s.UserIDs(ctx)
	if len(ids) != 2 {
		t.Fatalf("UserIDs after reload = %v", ids)
	}
	prefs, _ := s.Preferences(ctx, "u1")
	if prefs.Enabled(PrefNutritionTips) {
		t.Fatal("reloaded preference not applied")
	}
}

func TestOpenFileMissing(t *testing.T) {
	t.Parallel()
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file should error")
	}
}
