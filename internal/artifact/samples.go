package artifact

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"mediaapi/internal/ffmpeg"
)

// DecodeSampleRate is the rate requested from ffmpeg for formats without a
// native decoder.
const DecodeSampleRate = 22050

const pcmChunkFrames = 4096

// LoadSamples decodes up to maxSeconds (0 = all) of audio as mono samples in
// [-1, 1] and returns them with their sample rate. WAV and MP3 are decoded
// natively; other formats go through ffmpeg.
func LoadSamples(ctx context.Context, path, ext string, runner ffmpeg.Runner, maxSeconds int) ([]float64, int, error) {
	switch ext {
	case "wav":
		return wavSamples(path, maxSeconds)
	case "mp3":
		return mp3Samples(path, maxSeconds)
	}
	if runner == nil {
		return nil, 0, fmt.Errorf("no decoder for %q", ext)
	}
	pcm, err := runner.PCM(ctx, path, DecodeSampleRate, maxSeconds)
	if err != nil {
		return nil, 0, err
	}
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / 32768
	}
	return out, DecodeSampleRate, nil
}

func wavSamples(path string, maxSeconds int) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file")
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, 0, fmt.Errorf("seek to pcm: %w", err)
	}
	channels := int(d.NumChans)
	rate := int(d.SampleRate)
	if channels <= 0 || rate <= 0 || d.BitDepth == 0 {
		return nil, 0, fmt.Errorf("invalid wav format")
	}
	scale := float64(int64(1) << (d.BitDepth - 1))
	limit := maxFrames(rate, maxSeconds)

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:   make([]int, pcmChunkFrames*channels),
	}
	var out []float64
	for limit < 0 || len(out) < limit {
		n, err := d.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("read pcm: %w", err)
		}
		if n == 0 {
			break
		}
		for i := 0; i+channels <= n; i += channels {
			var sum float64
			for c := 0; c < channels; c++ {
				sum += float64(buf.Data[i+c])
			}
			out = append(out, sum/float64(channels)/scale)
		}
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, rate, nil
}

// mp3Samples reads go-mp3's 16-bit little endian stereo output and mixes it
// down to mono.
func mp3Samples(path string, maxSeconds int) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	rate := d.SampleRate()
	limit := maxFrames(rate, maxSeconds)

	chunk := make([]byte, pcmChunkFrames*4)
	var out []float64
	for limit < 0 || len(out) < limit {
		n, err := io.ReadFull(d, chunk)
		for i := 0; i+4 <= n; i += 4 {
			l := int16(binary.LittleEndian.Uint16(chunk[i:]))
			r := int16(binary.LittleEndian.Uint16(chunk[i+2:]))
			out = append(out, (float64(l)+float64(r))/2/32768)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read mp3: %w", err)
		}
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, rate, nil
}

// maxFrames returns the sample cap for maxSeconds, or -1 for no cap.
func maxFrames(rate, maxSeconds int) int {
	if maxSeconds <= 0 {
		return -1
	}
	return rate * maxSeconds
}
