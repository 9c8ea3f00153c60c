package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"houseprice/ml"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := testBundle(t, "v1")
	if err := Save(dir, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{ModelFile, ScalerFile, ColumnsFile, LocationsFile, ManifestFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != "v1" || !got.TrainedAt.Equal(want.TrainedAt) {
		t.Fatalf("unexpected bundle header: %s %v", got.Version, got.TrainedAt)
	}
	if got.Schema.Len() != want.Schema.Len() {
		t.Fatalf("schema width changed: %d", got.Schema.Len())
	}
	if i, ok := got.Schema.OneHotIndex(ml.FieldHouseType, "villa"); !ok || i != 4 {
		t.Fatalf("schema index not rebuilt: %d %v", i, ok)
	}
	if got.Categories.HouseType(5) != "villa" || got.Locations.First() != "Akota" {
		t.Fatalf("unexpected categories or locations")
	}
	p1, _ := want.Model.Predict([]float64{1, 1, 1, 0, 0, 1})
	p2, err := got.Model.Predict([]float64{1, 1, 1, 0, 0, 1})
	if err != nil || p1 != p2 {
		t.Fatalf("model changed across save/load: %v %v %v", p1, p2, err)
	}
	if got.Metrics != want.Metrics {
		t.Fatalf("metrics changed: %+v", got.Metrics)
	}
}

func TestLoadVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, testBundle(t, "v1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other := t.TempDir()
	if err := Save(other, testBundle(t, "v2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(other, ScalerFile))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ScalerFile), data, 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, ml.ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad, got %v", err)
	}
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ml.ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad for empty dir, got %v", err)
	}

	dir := t.TempDir()
	if err := Save(dir, testBundle(t, "v1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ColumnsFile), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Load(dir); !errors.Is(err, ml.ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad for corrupt columns, got %v", err)
	}
}

func TestSaveRejectsInvalidBundle(t *testing.T) {
	b := testBundle(t, "v1")
	b.Scaler = nil
	dir := t.TempDir()
	if err := Save(dir, b); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); !os.IsNotExist(err) {
		t.Fatalf("expected no manifest for a rejected bundle")
	}
}

func TestWatcherReloadsOnManifestChange(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, testBundle(t, "v1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	holder := NewHolder(nil)
	w := NewWatcher(dir, holder, nil)
	w.debounce = 20 * time.Millisecond
	reloaded := make(chan string, 4)
	w.OnReload(func(b *Bundle) { reloaded <- b.Version })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register before rewriting
	time.Sleep(100 * time.Millisecond)
	if err := Save(dir, testBundle(t, "v2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case v := <-reloaded:
		if v != "v2" {
			t.Fatalf("expected v2, got %s", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not reload")
	}
	if holder.Current() == nil || holder.Current().Version != "v2" {
		t.Fatalf("holder not updated")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
