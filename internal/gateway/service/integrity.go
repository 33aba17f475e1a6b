package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/audit"
	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/modelgate/internal/gateway/model"
	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"gopkg.in/yaml.v3"
)

// ManifestSuffix is appended to the artifact path when no manifest path is
// configured.
const ManifestSuffix = ".manifest.yaml"

// Quarantine reasons surfaced on /model/info.
const (
	ReasonNotLoaded           = "not_loaded"
	ReasonArtifactUnreadable  = "artifact_unreadable"
	ReasonManifestUnreadable  = "manifest_unreadable"
	ReasonFingerprintMismatch = "fingerprint_mismatch"
	ReasonVersionMismatch     = "version_mismatch"
	ReasonDecodeFailed        = "decode_failed"
	ReasonArtifactChanged     = "artifact_changed"
)

// ManifestPathFor is the default manifest location for an artifact.
func ManifestPathFor(artifactPath string) string { return artifactPath + ManifestSuffix }

// ReadManifest parses a version manifest. JSON and YAML are both accepted.
func ReadManifest(path string) (domain.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Manifest{}, err
	}
	var m domain.Manifest
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &m)
	} else {
		err = yaml.Unmarshal(raw, &m)
	}
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Version == "" {
		return domain.Manifest{}, fmt.Errorf("manifest %s: version is required", path)
	}
	return m, nil
}

// Snapshot is the artifact state every request captures once. Model is nil
// unless Artifact.Trusted.
type Snapshot struct {
	Artifact domain.ModelArtifact
	Model    model.Model
}

// Serving reports whether predictions may be made from this snapshot.
func (s *Snapshot) Serving() bool {
	return s != nil && s.Artifact.Trusted && s.Model != nil
}

type IntegrityOptions struct {
	// ManifestPath overrides ManifestPathFor(path).
	ManifestPath string
	Decoder      model.Decoder
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Audit        audit.Recorder
	Now          func() time.Time
}

// IntegrityVerifier owns the trusted flag of the served artifact. The
// published snapshot is replaced atomically, never mutated.
type IntegrityVerifier struct {
	opts IntegrityOptions

	mu      sync.Mutex // serializes Load and Reverify
	current atomic.Pointer[Snapshot]

	manifestPath string
}

func NewIntegrityVerifier(opts IntegrityOptions) *IntegrityVerifier {
	if opts.Decoder == nil {
		opts.Decoder = model.DecodeCentroid
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	v := &IntegrityVerifier{opts: opts}
	v.current.Store(&Snapshot{Artifact: domain.ModelArtifact{Reason: ReasonNotLoaded}})
	return v
}

// Current returns the published snapshot. Never nil.
func (v *IntegrityVerifier) Current() *Snapshot { return v.current.Load() }

// ManifestPath is the manifest location used by the last Load.
func (v *IntegrityVerifier) ManifestPath() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.manifestPath
}

// Load digests the artifact at path, checks it against the expected
// fingerprint and the manifest against the expected version, and publishes
// the result. On any mismatch the published artifact is untrusted and the
// returned error says why.
func (v *IntegrityVerifier) Load(ctx context.Context, path, expectedFingerprint, expectedVersion string) (domain.ModelArtifact, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.opts.Now().UTC()
	manifestPath := v.opts.ManifestPath
	if manifestPath == "" {
		manifestPath = ManifestPathFor(path)
	}
	v.manifestPath = manifestPath

	art := domain.ModelArtifact{
		Path:      path,
		Version:   expectedVersion,
		LoadedAt:  now,
		CheckedAt: now,
	}

	data, digest, err := readAndDigest(ctx, path)
	if err != nil {
		return v.reject(ctx, art, ReasonArtifactUnreadable, fmt.Errorf("%w: %w", domain.ErrArtifactUnreadable, err))
	}
	art.Fingerprint = digest

	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return v.reject(ctx, art, ReasonManifestUnreadable, fmt.Errorf("%w: %w", domain.ErrArtifactUnreadable, err))
	}

	if !cryptox.EqualDigest(digest, expectedFingerprint) {
		return v.reject(ctx, art, ReasonFingerprintMismatch, domain.ErrFingerprintMismatch)
	}
	if manifest.Fingerprint != "" && !cryptox.EqualDigest(digest, manifest.Fingerprint) {
		return v.reject(ctx, art, ReasonFingerprintMismatch, fmt.Errorf("%w: manifest disagrees with artifact", domain.ErrFingerprintMismatch))
	}
	if manifest.Version != expectedVersion {
		art.Version = manifest.Version
		return v.reject(ctx, art, ReasonVersionMismatch,
			fmt.Errorf("%w: manifest %q, expected %q", domain.ErrVersionMismatch, manifest.Version, expectedVersion))
	}

	m, err := v.opts.Decoder(data)
	if err != nil {
		return v.reject(ctx, art, ReasonDecodeFailed, fmt.Errorf("%w: %w", domain.ErrArtifactUnreadable, err))
	}
	if manifest.FeatureCount > 0 && manifest.FeatureCount != m.FeatureCount() {
		return v.reject(ctx, art, ReasonDecodeFailed,
			fmt.Errorf("%w: manifest feature_count %d, model has %d", domain.ErrArtifactUnreadable, manifest.FeatureCount, m.FeatureCount()))
	}

	art.Trusted = true
	v.current.Store(&Snapshot{Artifact: art, Model: m})
	v.opts.Metrics.SetModelTrusted(true)
	v.opts.Logger.InfoContext(ctx, "model artifact trusted",
		slog.String("path", path),
		slog.String("version", art.Version),
		slog.String("fingerprint", art.Fingerprint),
		slog.Int("feature_count", m.FeatureCount()),
	)
	return art, nil
}

// Reverify re-digests the on-disk bytes of the published artifact and
// re-reads its manifest. A trusted artifact that no longer matches is
// quarantined; in-flight requests keep the snapshot they already hold.
// An untrusted artifact is never promoted back.
func (v *IntegrityVerifier) Reverify(ctx context.Context) (domain.ModelArtifact, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cur := v.current.Load()
	if !cur.Artifact.Trusted {
		v.opts.Metrics.RecordReverify(metrics.ReverifySkipped)
		return cur.Artifact, nil
	}

	art := cur.Artifact
	digest, err := cryptox.DigestFile(ctx, art.Path)
	if err != nil {
		if ctx.Err() != nil {
			v.opts.Metrics.RecordReverify(metrics.ReverifyError)
			return art, ctx.Err()
		}
		return v.quarantine(ctx, art, ReasonArtifactUnreadable, fmt.Errorf("%w: %w", domain.ErrArtifactUnreadable, err))
	}
	if !cryptox.EqualDigest(digest, art.Fingerprint) {
		art.Fingerprint = digest
		return v.quarantine(ctx, art, ReasonArtifactChanged, domain.ErrFingerprintMismatch)
	}

	manifest, err := ReadManifest(v.manifestPath)
	if err != nil {
		return v.quarantine(ctx, art, ReasonManifestUnreadable, fmt.Errorf("%w: %w", domain.ErrArtifactUnreadable, err))
	}
	if manifest.Version != art.Version {
		return v.quarantine(ctx, art, ReasonVersionMismatch,
			fmt.Errorf("%w: manifest now %q, serving %q", domain.ErrVersionMismatch, manifest.Version, art.Version))
	}

	art.CheckedAt = v.opts.Now().UTC()
	v.current.Store(&Snapshot{Artifact: art, Model: cur.Model})
	v.opts.Metrics.RecordReverify(metrics.ReverifyOK)
	return art, nil
}

func (v *IntegrityVerifier) quarantine(ctx context.Context, art domain.ModelArtifact, reason string, cause error) (domain.ModelArtifact, error) {
	v.opts.Metrics.RecordReverify(metrics.ReverifyQuarantined)
	return v.reject(ctx, art, reason, cause)
}

// reject publishes art as untrusted and records the integrity failure.
func (v *IntegrityVerifier) reject(ctx context.Context, art domain.ModelArtifact, reason string, cause error) (domain.ModelArtifact, error) {
	now := v.opts.Now().UTC()
	art = art.Quarantined(reason, now)
	v.current.Store(&Snapshot{Artifact: art})
	v.opts.Metrics.SetModelTrusted(false)

	v.opts.Logger.ErrorContext(ctx, "model artifact untrusted",
		slog.String("path", art.Path),
		slog.String("version", art.Version),
		slog.String("reason", reason),
		slog.Any("error", cause),
	)
	if v.opts.Audit != nil {
		v.opts.Audit.Record(domain.AuditEvent{
			Timestamp:    now,
			Decision:     domain.DecisionDeniedUntrustedModel,
			Detail:       "integrity: " + reason,
			ModelVersion: art.Version,
		})
	}
	return art, cause
}

// readAndDigest reads the whole artifact, hashing exactly the bytes that
// will be decoded.
func readAndDigest(ctx context.Context, path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	digest, err := cryptox.DigestReader(ctx, io.TeeReader(f, &buf))
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), digest, nil
}
