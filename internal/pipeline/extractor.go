package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"go.uber.org/zap"
)

// DefaultMaxFrames caps how many frames are extracted from one video.
const DefaultMaxFrames = 20

type Extractor struct {
	decoder   port.FrameDecoder
	maxFrames int
	logger    *zap.Logger
}

func NewExtractor(decoder port.FrameDecoder, maxFrames int, logger *zap.Logger) *Extractor {
	return &Extractor{decoder: decoder, maxFrames: maxFrames, logger: logger}
}

// Extract decodes at most maxFrames frames from the video at path, in decode
// order. A failure before the first frame fails the extraction; a later
// failure truncates the sequence at the last decoded frame.
func (e *Extractor) Extract(ctx context.Context, path string) ([]entity.Frame, error) {
	if e.maxFrames <= 0 {
		return nil, nil
	}

	src, err := e.decoder.Open(ctx, path, e.maxFrames)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", entity.ErrDecode, path, err)
	}
	defer src.Close()

	frames := make([]entity.Frame, 0, e.maxFrames)
	for len(frames) < e.maxFrames {
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(frames) == 0 {
				return nil, fmt.Errorf("%w: first frame: %w", entity.ErrDecode, err)
			}
			e.logger.Warn("decode failed mid-stream, truncating",
				zap.Int("decoded", len(frames)),
				zap.Error(err),
			)
			break
		}
		f.Index = len(frames)
		frames = append(frames, f)
	}

	return frames, nil
}
