package domain

import "time"

// ModelArtifact describes the serialized model and whether it may serve.
// Values are immutable; every trust transition produces a new one.
type ModelArtifact struct {
	Path        string
	Version     string
	Fingerprint string // hex SHA-256 of the on-disk bytes at last check
	Trusted     bool
	LoadedAt    time.Time
	CheckedAt   time.Time
	Reason      string // why the artifact is quarantined, empty when trusted
}

// Quarantined returns a copy marked untrusted for reason.
func (m ModelArtifact) Quarantined(reason string, at time.Time) ModelArtifact {
	m.Trusted = false
	m.Reason = reason
	m.CheckedAt = at
	return m
}

// Manifest is the version metadata shipped beside the artifact by the
// training pipeline.
type Manifest struct {
	Version      string    `json:"version" yaml:"version"`
	Fingerprint  string    `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	Accuracy     float64   `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
	FeatureCount int       `json:"feature_count,omitempty" yaml:"feature_count,omitempty"`
	Classes      []string  `json:"classes,omitempty" yaml:"classes,omitempty"`
}
