package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"go.uber.org/zap"
)

// Decoder streams RGB24 frames out of ffmpeg.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewDecoder(ffmpegPath, ffprobePath string, logger *zap.Logger) *Decoder {
	return &Decoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

func (d *Decoder) Open(ctx context.Context, videoPath string, maxFrames int) (port.FrameSource, error) {
	width, height, err := d.probeSize(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, decodeArgs(videoPath, maxFrames)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	d.logger.Debug("ffmpeg decoding",
		zap.String("path", videoPath),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("max_frames", maxFrames),
	)

	return &frameSource{
		cmd:       cmd,
		stdout:    bufio.NewReaderSize(stdout, width*height*entity.Channels),
		stderr:    &stderr,
		width:     width,
		height:    height,
		frameSize: width * height * entity.Channels,
	}, nil
}

// decodeArgs streams up to maxFrames RGB24 frames to stdout. Rotation
// metadata is ignored so frames keep the coded size ffprobe reports.
func decodeArgs(videoPath string, maxFrames int) []string {
	return []string{
		"-v", "error",
		"-noautorotate",
		"-i", videoPath,
		"-frames:v", strconv.Itoa(maxFrames),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

func (d *Decoder) probeSize(ctx context.Context, videoPath string) (int, int, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0:s=x",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseSize(string(output))
}

// parseSize reads ffprobe's "WIDTHxHEIGHT" line.
func parseSize(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	w, h, ok := strings.Cut(strings.TrimSuffix(s, "x"), "x")
	if !ok {
		return 0, 0, fmt.Errorf("parse frame size %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	return width, height, nil
}

type frameSource struct {
	cmd       *exec.Cmd
	stdout    io.Reader
	stderr    *bytes.Buffer
	width     int
	height    int
	frameSize int
	closed    bool
}

func (s *frameSource) Next() (entity.Frame, error) {
	buf := make([]byte, s.frameSize)
	_, err := io.ReadFull(s.stdout, buf)
	switch {
	case err == nil:
		return entity.Frame{Width: s.width, Height: s.height, Pixels: buf}, nil
	case errors.Is(err, io.EOF):
		// ffmpeg exits non-zero on a corrupt stream; a clean exit is the end
		// of the video.
		if werr := s.wait(); werr != nil {
			return entity.Frame{}, fmt.Errorf("ffmpeg: %w, output: %s", werr, s.stderr.String())
		}
		return entity.Frame{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return entity.Frame{}, fmt.Errorf("short frame: %w", err)
	default:
		return entity.Frame{}, fmt.Errorf("read frame: %w", err)
	}
}

func (s *frameSource) Close() error {
	if s.closed {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.wait()
	return nil
}

func (s *frameSource) wait() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cmd.Wait()
}
