package gatewaysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Scopes the gateway grants.
const (
	ScopePredict   = "predict"
	ScopeModelRead = "model:read"
)

// Predict calls POST /predict. Quota rejections come back as a
// *GatewayError for which IsQuotaExceeded is true.
func (s *Session) Predict(ctx context.Context, features []float64) (*PredictResponse, error) {
	body, err := json.Marshal(PredictRequest{Features: features})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/predict", bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"},
		ScopePredict,
	)
	if err != nil {
		return nil, err
	}

	var out PredictResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelInfo calls GET /model/info.
func (s *Session) ModelInfo(ctx context.Context) (*ModelInfoResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/model/info", nil, nil, ScopeModelRead)
	if err != nil {
		return nil, err
	}

	var out ModelInfoResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
