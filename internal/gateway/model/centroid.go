package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// FormatCentroid identifies the nearest-centroid artifact format.
const FormatCentroid = "centroid"

// CentroidArtifact is the on-disk JSON layout of a centroid model.
type CentroidArtifact struct {
	Format       string          `json:"format"`
	FeatureCount int             `json:"feature_count"`
	Classes      []CentroidClass `json:"classes"`
}

type CentroidClass struct {
	Label    int       `json:"label"`
	Name     string    `json:"name,omitempty"`
	Centroid []float64 `json:"centroid"`
}

// Centroid classifies by Euclidean distance to per-class centroids and
// reports a softmax over negative distances as probabilities.
type Centroid struct {
	features int
	classes  []CentroidClass
}

// DecodeCentroid is the default Decoder.
func DecodeCentroid(data []byte) (Model, error) {
	var a CentroidArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("model: decode centroid artifact: %w", err)
	}
	if a.Format != FormatCentroid {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, a.Format)
	}
	return NewCentroid(a.FeatureCount, a.Classes)
}

// NewCentroid validates classes and builds a Centroid model.
func NewCentroid(features int, classes []CentroidClass) (*Centroid, error) {
	if features <= 0 {
		return nil, errors.New("model: feature_count must be positive")
	}
	if len(classes) == 0 {
		return nil, errors.New("model: no classes")
	}
	seen := make(map[int]struct{}, len(classes))
	for _, c := range classes {
		if len(c.Centroid) != features {
			return nil, fmt.Errorf("model: class %d has %d centroid values, want %d", c.Label, len(c.Centroid), features)
		}
		for _, v := range c.Centroid {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("model: class %d centroid is not finite", c.Label)
			}
		}
		if _, dup := seen[c.Label]; dup {
			return nil, fmt.Errorf("model: duplicate class label %d", c.Label)
		}
		seen[c.Label] = struct{}{}
	}
	return &Centroid{features: features, classes: classes}, nil
}

func (m *Centroid) FeatureCount() int { return m.features }

func (m *Centroid) Predict(ctx context.Context, features []float64) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if len(features) != m.features {
		return Prediction{}, fmt.Errorf("model: got %d features, want %d", len(features), m.features)
	}

	scores := make([]float64, len(m.classes))
	best := 0
	for i, c := range m.classes {
		var d float64
		for j, v := range c.Centroid {
			diff := features[j] - v
			d += diff * diff
		}
		scores[i] = -math.Sqrt(d)
		if scores[i] > scores[best] {
			best = i
		}
	}

	return Prediction{
		Class:         m.classes[best].Label,
		Probabilities: softmax(scores),
	}, nil
}

func softmax(xs []float64) []float64 {
	peak := math.Inf(-1)
	for _, x := range xs {
		peak = max(peak, x)
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp(x - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
