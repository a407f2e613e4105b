package artifact

import (
	"encoding/json"
	"math"

	"mediaapi/internal/model"
)

// DefaultWaveformPoints is the number of peaks produced when none is given.
const DefaultWaveformPoints = 100

// Waveform reduces samples to peak amplitudes per bucket, normalized by the
// loudest sample so the result lies in [0, 1]. Silence yields zeros. When
// there are fewer samples than points each sample becomes its own point.
// The last bucket absorbs the remainder of an uneven split.
func Waveform(samples []float64, points int) []float64 {
	if points <= 0 {
		points = DefaultWaveformPoints
	}
	if len(samples) == 0 {
		return []float64{}
	}
	if len(samples) < points {
		points = len(samples)
	}

	var peak float64
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(s))
	}
	out := make([]float64, points)
	if peak == 0 {
		return out
	}

	per := len(samples) / points
	for i := range out {
		start := i * per
		end := start + per
		if i == points-1 {
			end = len(samples)
		}
		var m float64
		for _, s := range samples[start:end] {
			m = math.Max(m, math.Abs(s))
		}
		out[i] = m / peak
	}
	return out
}

type waveformDoc struct {
	Points     int       `json:"points"`
	SampleRate int       `json:"sample_rate"`
	Peaks      []float64 `json:"peaks"`
}

// WaveformJSON packages peaks as a JSON artifact.
func WaveformJSON(peaks []float64, sampleRate int) (Artifact, error) {
	for i, p := range peaks {
		peaks[i] = math.Round(p*10000) / 10000
	}
	data, err := json.Marshal(waveformDoc{Points: len(peaks), SampleRate: sampleRate, Peaks: peaks})
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Kind:        model.ArtifactWaveform,
		Name:        "waveform.json",
		ContentType: "application/json",
		Data:        data,
	}, nil
}
