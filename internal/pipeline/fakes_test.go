package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
)

// fakeDecoder yields total 1x1 frames whose pixel value is the frame
// position. failAt >= 0 makes the read at that position fail.
type fakeDecoder struct {
	total   int
	failAt  int
	openErr error
	opened  int
}

func (d *fakeDecoder) Open(_ context.Context, _ string, _ int) (port.FrameSource, error) {
	d.opened++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeSource{total: d.total, failAt: d.failAt}, nil
}

type fakeSource struct {
	total  int
	failAt int
	pos    int
	closed bool
}

func (s *fakeSource) Next() (entity.Frame, error) {
	if s.failAt >= 0 && s.pos == s.failAt {
		return entity.Frame{}, errors.New("corrupt packet")
	}
	if s.pos >= s.total {
		return entity.Frame{}, io.EOF
	}
	f := entity.Frame{Width: 1, Height: 1, Pixels: []byte{byte(s.pos), byte(s.pos), byte(s.pos)}}
	s.pos++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// fakePredictor answers every frame with one "person" detection scored by
// the frame index, and records the size of every batch.
type fakePredictor struct {
	mu      sync.Mutex
	sizes   []int
	indices []int
	failOn  int // 1-based call number that fails, 0 for never
	class   float64
}

func (p *fakePredictor) Predict(_ context.Context, batch []entity.Tensor) ([]port.RawPrediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sizes = append(p.sizes, len(batch))
	if p.failOn > 0 && len(p.sizes) == p.failOn {
		return nil, errors.New("503 service unavailable")
	}

	class := p.class
	if class == 0 {
		class = 1
	}
	out := make([]port.RawPrediction, len(batch))
	for i, t := range batch {
		p.indices = append(p.indices, t.Index)
		out[i] = port.RawPrediction{
			NumDetections:    1,
			DetectionClasses: []float64{class, 3},
			DetectionScores:  []float64{float64(t.Index), 0.1},
		}
	}
	return out, nil
}

func (p *fakePredictor) calls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.sizes...)
}
