package ffmpeg

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe's -show_format -show_streams JSON we use.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is a single ffprobe stream entry. Numeric fields that ffprobe emits
// as strings are kept as strings and parsed by the helpers.
type Stream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	SampleRate   string            `json:"sample_rate"`
	Channels     int               `json:"channels"`
	BitRate      string            `json:"bit_rate"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
}

// Format is ffprobe's container section.
type Format struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(raw string) (*ProbeResult, error) {
	var res ProbeResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &res, nil
}

// VideoStream returns the first video stream.
func (p *ProbeResult) VideoStream() (Stream, bool) {
	return p.firstOf("video")
}

// AudioStream returns the first audio stream.
func (p *ProbeResult) AudioStream() (Stream, bool) {
	return p.firstOf("audio")
}

func (p *ProbeResult) firstOf(codecType string) (Stream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			return s, true
		}
	}
	return Stream{}, false
}

// Duration returns the container duration in seconds, falling back to the
// longest stream duration.
func (p *ProbeResult) Duration() float64 {
	if d, err := strconv.ParseFloat(p.Format.Duration, 64); err == nil && d > 0 {
		return d
	}
	var longest float64
	for _, s := range p.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > longest {
			longest = d
		}
	}
	return longest
}

// BitrateKbps returns the container bitrate, else the given stream's, in kbit/s.
func (p *ProbeResult) BitrateKbps(s Stream) int {
	for _, v := range []string{p.Format.BitRate, s.BitRate} {
		if b, err := strconv.ParseInt(v, 10, 64); err == nil && b > 0 {
			return int(b / 1000)
		}
	}
	return 0
}

// Tag looks a key up in the format tags, then the stream tags, ignoring case.
func (p *ProbeResult) Tag(s Stream, key string) string {
	for _, tags := range []map[string]string{p.Format.Tags, s.Tags} {
		for k, v := range tags {
			if strings.EqualFold(k, key) {
				return v
			}
		}
	}
	return ""
}

// SampleRateHz parses the stream sample rate.
func (s Stream) SampleRateHz() int {
	n, _ := strconv.Atoi(s.SampleRate)
	return n
}

// FrameRate returns the average frame rate, else the real base frame rate.
func (s Stream) FrameRate() (float64, bool) {
	if fps, ok := ParseFrameRate(s.AvgFrameRate); ok {
		return fps, true
	}
	return ParseFrameRate(s.RFrameRate)
}

// ParseFrameRate parses "num/den" or a plain number, rounded to three decimals.
// "24000/1001" yields 23.976. Zero or malformed rates report false.
func ParseFrameRate(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	var fps float64
	if num, den, ok := strings.Cut(v, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		fps = n / d
	} else {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		fps = f
	}
	if fps <= 0 || math.IsInf(fps, 0) || math.IsNaN(fps) {
		return 0, false
	}
	return math.Round(fps*1000) / 1000, true
}
