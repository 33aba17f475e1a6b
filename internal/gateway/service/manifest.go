package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/model"
	"gopkg.in/yaml.v3"
)

// BuildManifest digests the artifact at path and checks that decode accepts
// it, returning the manifest a deployment should ship beside it.
func BuildManifest(ctx context.Context, path, version string, decode model.Decoder, now time.Time) (domain.Manifest, error) {
	if version == "" {
		return domain.Manifest{}, fmt.Errorf("%w: version is required", domain.ErrValidation)
	}
	if decode == nil {
		decode = model.DecodeCentroid
	}

	data, digest, err := readAndDigest(ctx, path)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("%w: %w", domain.ErrArtifactUnreadable, err)
	}
	m, err := decode(data)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("%w: %w", domain.ErrArtifactUnreadable, err)
	}

	return domain.Manifest{
		Version:      version,
		Fingerprint:  digest,
		CreatedAt:    now.UTC().Truncate(time.Second),
		FeatureCount: m.FeatureCount(),
	}, nil
}

// WriteManifest writes m as YAML via a temp file and rename, so a watcher
// never observes a half-written manifest.
func WriteManifest(path string, m domain.Manifest) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
