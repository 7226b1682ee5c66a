package port

import (
	"context"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
)

// FrameSource is a finite, forward-only sequence of decoded frames.
type FrameSource interface {
	// Next returns the next frame, or io.EOF once the video is exhausted.
	Next() (entity.Frame, error)
	Close() error
}

type FrameDecoder interface {
	Open(ctx context.Context, path string, maxFrames int) (FrameSource, error)
}
