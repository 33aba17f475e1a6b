// Package model defines the predict contract the gateway serves and the
// reference artifact decoder.
package model

import (
	"context"
	"errors"
)

// DefaultFeatureCount is the input arity of the reference iris artifact.
const DefaultFeatureCount = 4

// ErrUnsupportedFormat is returned for artifacts this build cannot decode.
var ErrUnsupportedFormat = errors.New("model: unsupported artifact format")

// Model is a loaded, trusted artifact ready to answer predictions.
// Implementations must be safe for concurrent use.
type Model interface {
	Predict(ctx context.Context, features []float64) (Prediction, error)
	FeatureCount() int
}

// Prediction is the class index plus one probability per class.
type Prediction struct {
	Class         int
	Probabilities []float64
}

// Decoder turns verified artifact bytes into a Model.
type Decoder func(data []byte) (Model, error)

// Func adapts a function to Model. Handy in tests.
type Func struct {
	Features int
	Fn       func(ctx context.Context, features []float64) (Prediction, error)
}

func (f Func) Predict(ctx context.Context, features []float64) (Prediction, error) {
	return f.Fn(ctx, features)
}

func (f Func) FeatureCount() int { return f.Features }
