package tfserving

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	json "github.com/goccy/go-json"
)

// Client calls the TensorFlow Serving REST predict endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Instances []entity.Tensor `json:"instances"`
}

type predictResponse struct {
	Predictions []port.RawPrediction `json:"predictions"`
	Error       string               `json:"error,omitempty"`
}

// Predict sends one batch in a single request and returns the raw
// per-frame predictions.
func (c *Client) Predict(ctx context.Context, batch []entity.Tensor) ([]port.RawPrediction, error) {
	body, err := json.Marshal(predictRequest{Instances: batch})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", entity.ErrInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", entity.ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: post predict: %w", entity.ErrInference, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", entity.ErrInference, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: predict failed with status %d: %s", entity.ErrInference, resp.StatusCode, truncate(data, 256))
	}

	var out predictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", entity.ErrInference, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: server error: %s", entity.ErrInference, out.Error)
	}
	if out.Predictions == nil {
		return nil, fmt.Errorf("%w: response has no predictions", entity.ErrInference)
	}
	return out.Predictions, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
