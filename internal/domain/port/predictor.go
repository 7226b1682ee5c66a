package port

import (
	"context"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
)

// RawPrediction is the per-frame answer of the inference server before the
// caller truncates it to NumDetections.
type RawPrediction struct {
	NumDetections    float64   `json:"num_detections"`
	DetectionClasses []float64 `json:"detection_classes"`
	DetectionScores  []float64 `json:"detection_scores"`
}

type Predictor interface {
	Predict(ctx context.Context, batch []entity.Tensor) ([]RawPrediction, error)
}
