package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"houseprice/ml"
)

const (
	ModelFile     = "model.json"
	ScalerFile    = "scaler.json"
	ColumnsFile   = "columns.json"
	LocationsFile = "locations.json"
	ManifestFile  = "manifest.json"
)

// envelope wraps every persisted file with the bundle version it belongs to.
type envelope struct {
	Version   string          `json:"version"`
	ModelType string          `json:"model_type,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type locationsPayload struct {
	Locations  ml.LocationSet `json:"locations"`
	Categories ml.CategoryMap `json:"categories"`
}

// Manifest describes a persisted bundle. It is written last, so a directory
// with a manifest holds a complete set of files.
type Manifest struct {
	Version   string               `json:"version"`
	TrainedAt time.Time            `json:"trained_at"`
	ModelType string               `json:"model_type"`
	Features  int                  `json:"features"`
	Metrics   ml.RegressionMetrics `json:"metrics"`
	Files     []string             `json:"files"`
}

// Save validates b and writes it to dir, replacing whatever was there.
func Save(dir string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid bundle: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	modelType := ml.ModelType(b.Model)
	files := []struct {
		name      string
		modelType string
		payload   any
	}{
		{ModelFile, modelType, b.Model},
		{ScalerFile, "", b.Scaler},
		{ColumnsFile, "", b.Schema},
		{LocationsFile, "", locationsPayload{Locations: b.Locations, Categories: b.Categories}},
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if err := writeEnvelope(dir, f.name, b.Version, f.modelType, f.payload); err != nil {
			return err
		}
		names = append(names, f.name)
	}

	manifest := Manifest{
		Version:   b.Version,
		TrainedAt: b.TrainedAt.UTC(),
		ModelType: modelType,
		Features:  b.Schema.Len(),
		Metrics:   b.Metrics,
		Files:     names,
	}
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, ManifestFile), payload)
}

func writeEnvelope(dir, name, version, modelType string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data, err := json.MarshalIndent(envelope{Version: version, ModelType: modelType, Payload: payload}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return writeAtomic(filepath.Join(dir, name), data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads and validates the bundle in dir. Every failure wraps ml.ErrArtifactLoad.
func Load(dir string) (*Bundle, error) {
	b, err := load(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ml.ErrArtifactLoad, err)
	}
	return b, nil
}

func load(dir string) (*Bundle, error) {
	var manifest Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ManifestFile, err)
	}
	if manifest.Version == "" {
		return nil, errors.New("manifest has no version")
	}

	b := &Bundle{
		Version:   manifest.Version,
		TrainedAt: manifest.TrainedAt,
		Metrics:   manifest.Metrics,
	}

	env, err := readEnvelope(dir, ModelFile, manifest.Version)
	if err != nil {
		return nil, err
	}
	if b.Model, err = ml.DecodeModel(env.ModelType, env.Payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ModelFile, err)
	}

	b.Scaler = &ml.StandardScaler{}
	if err := readPayload(dir, ScalerFile, manifest.Version, b.Scaler); err != nil {
		return nil, err
	}
	b.Schema = &ml.Schema{}
	if err := readPayload(dir, ColumnsFile, manifest.Version, b.Schema); err != nil {
		return nil, err
	}
	var locs locationsPayload
	if err := readPayload(dir, LocationsFile, manifest.Version, &locs); err != nil {
		return nil, err
	}
	b.Locations = locs.Locations
	b.Categories = locs.Categories
	if len(b.Categories.HouseTypes) == 0 || len(b.Categories.Sizes) == 0 {
		b.Categories = ml.DefaultCategoryMap()
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func readEnvelope(dir, name, version string) (*envelope, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if env.Version != version {
		return nil, fmt.Errorf("%s has version %q, manifest has %q", name, env.Version, version)
	}
	return &env, nil
}

func readPayload(dir, name, version string, v any) error {
	env, err := readEnvelope(dir, name, version)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
