package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestIntegrity_NotLoaded(t *testing.T) {
	v := newVerifier(nil, newClock())
	snap := v.Current()
	require.NotNil(t, snap)
	require.False(t, snap.Serving())
	require.Equal(t, service.ReasonNotLoaded, snap.Artifact.Reason)
}

func TestIntegrity_LoadTrusted(t *testing.T) {
	clk := newClock()
	v := newVerifier(nil, clk)
	path, fp := writeArtifact(t, irisArtifact, modelVersion)

	art, err := v.Load(context.Background(), path, "sha256:"+fp, modelVersion)
	require.NoError(t, err)
	require.True(t, art.Trusted)
	require.Equal(t, fp, art.Fingerprint)
	require.Equal(t, modelVersion, art.Version)
	require.Equal(t, clk.Now(), art.LoadedAt)

	snap := v.Current()
	require.True(t, snap.Serving())
	require.Equal(t, 4, snap.Model.FeatureCount())
	require.Equal(t, service.ManifestPathFor(path), v.ManifestPath())
}

func TestIntegrity_LoadRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("fingerprint mismatch", func(t *testing.T) {
		rec := &recorder{}
		v := newVerifier(rec, newClock())
		path, _ := writeArtifact(t, irisArtifact, modelVersion)

		art, err := v.Load(ctx, path, cryptox.DigestBytes([]byte("something else")), modelVersion)
		require.ErrorIs(t, err, domain.ErrFingerprintMismatch)
		require.ErrorIs(t, err, domain.ErrIntegrity)
		require.False(t, art.Trusted)
		require.Equal(t, service.ReasonFingerprintMismatch, art.Reason)
		require.False(t, v.Current().Serving())
		require.Equal(t, 1, rec.Count(domain.DecisionDeniedUntrustedModel))
	})

	t.Run("version mismatch", func(t *testing.T) {
		v := newVerifier(nil, newClock())
		path, fp := writeArtifact(t, irisArtifact, "2.0.0")

		art, err := v.Load(ctx, path, fp, modelVersion)
		require.ErrorIs(t, err, domain.ErrVersionMismatch)
		require.Equal(t, service.ReasonVersionMismatch, art.Reason)
		require.Equal(t, "2.0.0", art.Version)
	})

	t.Run("version compared exactly", func(t *testing.T) {
		v := newVerifier(nil, newClock())
		path, fp := writeArtifact(t, irisArtifact, "1.0.0")

		_, err := v.Load(ctx, path, fp, "1.0")
		require.ErrorIs(t, err, domain.ErrVersionMismatch)
	})

	t.Run("missing artifact", func(t *testing.T) {
		v := newVerifier(nil, newClock())
		art, err := v.Load(ctx, filepath.Join(t.TempDir(), "nope"), "00", modelVersion)
		require.ErrorIs(t, err, domain.ErrArtifactUnreadable)
		require.Equal(t, service.ReasonArtifactUnreadable, art.Reason)
	})

	t.Run("missing manifest", func(t *testing.T) {
		v := newVerifier(nil, newClock())
		path, fp := writeArtifact(t, irisArtifact, modelVersion)
		require.NoError(t, os.Remove(service.ManifestPathFor(path)))

		art, err := v.Load(ctx, path, fp, modelVersion)
		require.ErrorIs(t, err, domain.ErrArtifactUnreadable)
		require.Equal(t, service.ReasonManifestUnreadable, art.Reason)
	})

	t.Run("undecodable artifact", func(t *testing.T) {
		v := newVerifier(nil, newClock())
		path, fp := writeArtifact(t, `{"format":"pickle"}`, modelVersion)

		art, err := v.Load(ctx, path, fp, modelVersion)
		require.ErrorIs(t, err, domain.ErrArtifactUnreadable)
		require.Equal(t, service.ReasonDecodeFailed, art.Reason)
	})
}

func TestIntegrity_JSONManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(irisArtifact), 0o600))
	manifest := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"version":"1.0.0","created_at":"2024-05-01T10:00:00Z","accuracy":0.97}`), 0o600))

	m, err := service.ReadManifest(manifest)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", m.Version)
	require.InDelta(t, 0.97, m.Accuracy, 1e-9)
	require.Equal(t, 2024, m.CreatedAt.Year())

	v := service.NewIntegrityVerifier(service.IntegrityOptions{ManifestPath: manifest})
	art, err := v.Load(context.Background(), path, cryptox.DigestBytes([]byte(irisArtifact)), "1.0.0")
	require.NoError(t, err)
	require.True(t, art.Trusted)
}

func TestIntegrity_ReverifyQuarantinesChangedArtifact(t *testing.T) {
	clk := newClock()
	rec := &recorder{}
	v := newVerifier(rec, clk)
	path := loadTrusted(t, v)
	ctx := context.Background()

	inFlight := v.Current()

	art, err := v.Reverify(ctx)
	require.NoError(t, err)
	require.True(t, art.Trusted)

	require.NoError(t, os.WriteFile(path, []byte(irisArtifact+"\n"), 0o600))

	art, err = v.Reverify(ctx)
	require.ErrorIs(t, err, domain.ErrFingerprintMismatch)
	require.False(t, art.Trusted)
	require.Equal(t, service.ReasonArtifactChanged, art.Reason)

	now := v.Current()
	require.False(t, now.Serving())
	require.Nil(t, now.Model)

	// The snapshot captured before the swap is untouched.
	require.True(t, inFlight.Serving())
	require.Equal(t, 1, rec.Count(domain.DecisionDeniedUntrustedModel))

	// Restoring the bytes does not re-trust the artifact.
	require.NoError(t, os.WriteFile(path, []byte(irisArtifact), 0o600))
	art, err = v.Reverify(ctx)
	require.NoError(t, err)
	require.False(t, art.Trusted)
}

func TestIntegrity_ReverifyManifestChanged(t *testing.T) {
	v := newVerifier(nil, newClock())
	path := loadTrusted(t, v)

	require.NoError(t, os.WriteFile(service.ManifestPathFor(path), []byte("version: 9.9.9\n"), 0o600))

	art, err := v.Reverify(context.Background())
	require.ErrorIs(t, err, domain.ErrVersionMismatch)
	require.Equal(t, service.ReasonVersionMismatch, art.Reason)
}

func TestIntegrity_ReverifyArtifactRemoved(t *testing.T) {
	v := newVerifier(nil, newClock())
	path := loadTrusted(t, v)
	require.NoError(t, os.Remove(path))

	art, err := v.Reverify(context.Background())
	require.ErrorIs(t, err, domain.ErrArtifactUnreadable)
	require.Equal(t, service.ReasonArtifactUnreadable, art.Reason)
}
