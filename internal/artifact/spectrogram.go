package artifact

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/cmplx"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/dsp/fourier"

	"mediaapi/internal/model"
)

// SpectrogramOptions controls the short-time Fourier transform and the image.
type SpectrogramOptions struct {
	FFTSize  int
	HopSize  int
	Height   int
	MaxWidth int
	// RangeDB is the dynamic range mapped onto the gray scale.
	RangeDB float64
}

// DefaultSpectrogramOptions mirrors the default processing configuration.
func DefaultSpectrogramOptions() SpectrogramOptions {
	return SpectrogramOptions{FFTSize: 1024, HopSize: 512, Height: 256, MaxWidth: 1024, RangeDB: 80}
}

func (o SpectrogramOptions) withDefaults() SpectrogramOptions {
	d := DefaultSpectrogramOptions()
	if o.FFTSize < 2 {
		o.FFTSize = d.FFTSize
	}
	if o.HopSize <= 0 {
		o.HopSize = o.FFTSize / 2
	}
	if o.Height <= 1 {
		o.Height = d.Height
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = d.MaxWidth
	}
	if o.RangeDB <= 0 {
		o.RangeDB = d.RangeDB
	}
	return o
}

// Spectrogram renders a grayscale PNG of the Hann-windowed STFT magnitude in
// decibels. Time runs left to right and low frequencies sit at the bottom.
// When there are more frames than MaxWidth, frames are sampled evenly.
func Spectrogram(samples []float64, opts SpectrogramOptions) (Artifact, error) {
	opts = opts.withDefaults()
	if len(samples) == 0 {
		return Artifact{}, fmt.Errorf("spectrogram: no samples")
	}

	n := opts.FFTSize
	if len(samples) < n {
		padded := make([]float64, n)
		copy(padded, samples)
		samples = padded
	}
	frames := 1 + (len(samples)-n)/opts.HopSize
	width := frames
	if width > opts.MaxWidth {
		width = opts.MaxWidth
	}

	window := hann(n)
	fft := fourier.NewFFT(n)
	bins := n/2 + 1
	frame := make([]float64, n)
	coeffs := make([]complex128, bins)

	db := make([][]float64, width)
	maxDB := math.Inf(-1)
	for col := 0; col < width; col++ {
		start := (col * frames / width) * opts.HopSize
		for i := range frame {
			frame[i] = samples[start+i] * window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		column := make([]float64, bins)
		for b, c := range coeffs {
			column[b] = 20 * math.Log10(cmplx.Abs(c)+1e-10)
			if column[b] > maxDB {
				maxDB = column[b]
			}
		}
		db[col] = column
	}

	img := image.NewGray(image.Rect(0, 0, width, opts.Height))
	floor := maxDB - opts.RangeDB
	for x := 0; x < width; x++ {
		for y := 0; y < opts.Height; y++ {
			bin := (opts.Height - 1 - y) * (bins - 1) / (opts.Height - 1)
			v := (db[x][bin] - floor) / opts.RangeDB
			v = math.Max(0, math.Min(1, v))
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v * 255))})
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return Artifact{}, fmt.Errorf("encode spectrogram: %w", err)
	}
	return Artifact{
		Kind:        model.ArtifactSpectrogram,
		Name:        "spectrogram.png",
		ContentType: "image/png",
		Data:        buf.Bytes(),
	}, nil
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}
