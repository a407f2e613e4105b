// Package ffmpeg wraps the ffmpeg and ffprobe binaries for probing media,
// grabbing video frames and decoding audio to raw PCM.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ffmpeg_go "github.com/u2takey/ffmpeg-go"
)

// Runner executes ffmpeg/ffprobe. The service and CLI depend on this interface
// so tests can substitute a fake.
type Runner interface {
	// Probe returns ffprobe's JSON description of the file (format + streams).
	Probe(ctx context.Context, path string) (string, error)
	// Frame returns one JPEG frame at the given offset in seconds. The frame is
	// scaled when both width and height are positive.
	Frame(ctx context.Context, path string, at float64, width, height int) ([]byte, error)
	// PCM decodes the first maxSeconds of audio (0 = all) to mono signed
	// 16-bit little endian samples at sampleRate.
	PCM(ctx context.Context, path string, sampleRate, maxSeconds int) ([]int16, error)
}

// ErrEmptyOutput is returned when ffmpeg exits cleanly but writes nothing.
var ErrEmptyOutput = errors.New("ffmpeg produced no output")

// CLI is the Runner backed by the binaries on PATH.
type CLI struct {
	probeTimeout time.Duration
}

// New returns a Runner using the ffmpeg/ffprobe binaries. probeTimeout bounds
// each ffprobe call; zero means 30 seconds.
func New(probeTimeout time.Duration) *CLI {
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	return &CLI{probeTimeout: probeTimeout}
}

func (c *CLI) Probe(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := c.probeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	out, err := ffmpeg_go.ProbeWithTimeout(path, timeout, ffmpeg_go.KwArgs{})
	if err != nil {
		return "", fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return out, nil
}

func (c *CLI) Frame(ctx context.Context, path string, at float64, width, height int) ([]byte, error) {
	stream := ffmpeg_go.Input(path, ffmpeg_go.KwArgs{"ss": strconv.FormatFloat(at, 'f', 3, 64)})
	if width > 0 && height > 0 {
		stream = stream.Filter("scale", ffmpeg_go.Args{strconv.Itoa(width), strconv.Itoa(height)})
	}

	var stdout, stderr bytes.Buffer
	cmd := stream.
		Output("pipe:", ffmpeg_go.KwArgs{"vframes": 1, "format": "image2", "vcodec": "mjpeg"}).
		WithOutput(&stdout, &stderr).
		Compile()

	if err := run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("extract frame at %.3fs: %w: %s", at, err, lastLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("extract frame at %.3fs: %w", at, ErrEmptyOutput)
	}
	return stdout.Bytes(), nil
}

func (c *CLI) PCM(ctx context.Context, path string, sampleRate, maxSeconds int) ([]int16, error) {
	out := ffmpeg_go.KwArgs{"f": "s16le", "acodec": "pcm_s16le", "ac": 1, "ar": sampleRate}
	if maxSeconds > 0 {
		out["t"] = maxSeconds
	}

	var stdout, stderr bytes.Buffer
	cmd := ffmpeg_go.Input(path).
		Output("pipe:", out).
		WithOutput(&stdout, &stderr).
		Compile()

	if err := run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("decode pcm: %w: %s", err, lastLine(stderr.String()))
	}
	return DecodeS16LE(stdout.Bytes()), nil
}

// DecodeS16LE converts raw little endian 16-bit PCM into samples. A trailing
// odd byte is ignored.
func DecodeS16LE(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples
}

// run starts cmd and kills it when ctx is cancelled before it exits.
func run(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
