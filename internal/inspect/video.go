package inspect

import (
	"context"
	"fmt"

	"mediaapi/internal/ffmpeg"
)

// VideoMeta describes the first video stream of a file.
type VideoMeta struct {
	DurationSeconds float64
	Width           int
	Height          int
	FrameRate       float64
	BitrateKbps     int
	Codec           string
}

// VideoInfo probes the file with ffprobe.
func VideoInfo(ctx context.Context, runner ffmpeg.Runner, path string) (VideoMeta, error) {
	raw, err := runner.Probe(ctx, path)
	if err != nil {
		return VideoMeta{}, err
	}
	probe, err := ffmpeg.ParseProbe(raw)
	if err != nil {
		return VideoMeta{}, err
	}
	s, ok := probe.VideoStream()
	if !ok {
		return VideoMeta{}, fmt.Errorf("%s: %w", path, ErrNoVideoStream)
	}
	fps, _ := s.FrameRate()
	return VideoMeta{
		DurationSeconds: probe.Duration(),
		Width:           s.Width,
		Height:          s.Height,
		FrameRate:       fps,
		BitrateKbps:     probe.BitrateKbps(s),
		Codec:           s.CodecName,
	}, nil
}
