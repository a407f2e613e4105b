// Package pipeline turns a staged upload into metadata and derived artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"mediaapi/internal/artifact"
	"mediaapi/internal/config"
	"mediaapi/internal/ffmpeg"
	"mediaapi/internal/inspect"
	"mediaapi/internal/model"
	"mediaapi/internal/validate"
)

var (
	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_processed_total",
		Help: "Total number of files run through the processing pipeline.",
	}, []string{"kind", "status"})
	processingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_processing_seconds",
		Help:    "Time spent extracting metadata and deriving artifacts.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})
)

// Metadata is what the extractors learned about a file.
type Metadata struct {
	ContentType     string
	MIMESniffed     bool
	Extension       string
	Width           *int
	Height          *int
	PageCount       *int
	DurationSeconds *int
	Attributes      model.Attributes
}

// Result is the outcome of Process. Warnings list extractor and artifact
// failures that were degraded instead of failing the upload.
type Result struct {
	Metadata  Metadata
	Artifacts []artifact.Artifact
	Warnings  []string
	Cached    bool
}

// Processor runs MIME detection, kind specific extraction and artifact
// derivation. It is safe for concurrent use.
type Processor struct {
	cfg    config.ProcessingConfig
	runner ffmpeg.Runner
	cache  *Cache
	log    *zap.Logger
}

// NewProcessor wires a Processor. cache may be nil.
func NewProcessor(cfg config.ProcessingConfig, runner ffmpeg.Runner, cache *Cache, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{cfg: cfg, runner: runner, cache: cache, log: log}
}

// Process extracts metadata from the staged file and derives artifacts.
// Only an invalid kind or a cancelled context return an error.
func (p *Processor) Process(ctx context.Context, staged *Staged, filename string, kind model.Kind) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", validate.ErrInvalidKind, kind)
	}
	start := time.Now()
	defer func() {
		processingSeconds.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	res := &Result{}
	log := p.log.With(zap.String("kind", string(kind)), zap.String("filename", filename), zap.String("checksum", staged.Checksum))
	warn := func(stage string, err error) {
		log.Warn("media extraction degraded", zap.String("stage", stage), zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", stage, err))
	}

	ext := inspect.Extension(filename)
	if cached, ok := p.cache.Get(kind, ext, staged.Checksum); ok {
		res.Metadata = cached
		res.Cached = true
	} else {
		res.Metadata = p.extract(ctx, staged, filename, kind, warn)
		if len(res.Warnings) == 0 && ctx.Err() == nil {
			p.cache.Set(kind, ext, staged.Checksum, res.Metadata)
		}
	}
	if err := ctx.Err(); err != nil {
		processedTotal.WithLabelValues(string(kind), "cancelled").Inc()
		return nil, err
	}

	res.Artifacts = p.derive(ctx, staged, res.Metadata.Extension, kind, warn)
	if err := ctx.Err(); err != nil {
		processedTotal.WithLabelValues(string(kind), "cancelled").Inc()
		return nil, err
	}

	status := "ok"
	if len(res.Warnings) > 0 {
		status = "degraded"
	}
	processedTotal.WithLabelValues(string(kind), status).Inc()
	log.Debug("media processed",
		zap.String("content_type", res.Metadata.ContentType),
		zap.Int("artifacts", len(res.Artifacts)),
		zap.Bool("cached", res.Cached),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (p *Processor) extract(ctx context.Context, staged *Staged, filename string, kind model.Kind, warn func(string, error)) Metadata {
	ext := inspect.Extension(filename)
	md := Metadata{Extension: ext, Attributes: model.Attributes{}}
	if ext != "" {
		md.Attributes["format"] = ext
	}

	mt, sniffed, err := inspect.DetectMIMEFile(staged.Path, filename)
	if err != nil {
		warn("mime", err)
	}
	md.ContentType, md.MIMESniffed = mt, sniffed

	switch kind {
	case model.KindImage:
		w, h, err := inspect.ImageDimensions(staged.Path)
		if err != nil {
			if ext != "svg" {
				warn("dimensions", err)
			}
			break
		}
		md.Width, md.Height = &w, &h

	case model.KindDocument:
		pages, err := inspect.CountPages(staged.Path, md.ContentType)
		if err != nil {
			if !errors.Is(err, inspect.ErrUnsupportedType) {
				warn("pages", err)
			}
			pages = 1
		}
		if pages < 1 {
			pages = 1
		}
		md.PageCount = &pages

	case model.KindAudio:
		info, err := inspect.AudioInfo(ctx, p.runner, staged.Path, ext)
		if err != nil {
			warn("audio", err)
			break
		}
		d := int(info.DurationSeconds)
		md.DurationSeconds = &d
		setIf(md.Attributes, "bitrate", info.BitrateKbps)
		setIf(md.Attributes, "sample_rate", info.SampleRate)
		setIf(md.Attributes, "channels", info.Channels)
		setIf(md.Attributes, "track_number", info.TrackNumber)
		setIfString(md.Attributes, "codec", info.Codec)
		setIfString(md.Attributes, "artist", info.Artist)
		setIfString(md.Attributes, "album", info.Album)
		setIfString(md.Attributes, "title", info.Title)
		setIfString(md.Attributes, "genre", info.Genre)

	case model.KindVideo:
		info, err := inspect.VideoInfo(ctx, p.runner, staged.Path)
		if err != nil {
			warn("video", err)
			break
		}
		d := int(info.DurationSeconds)
		md.DurationSeconds = &d
		if info.Width > 0 && info.Height > 0 {
			w, h := info.Width, info.Height
			md.Width, md.Height = &w, &h
		}
		setIf(md.Attributes, "bitrate", info.BitrateKbps)
		setIfString(md.Attributes, "codec", info.Codec)
		if info.FrameRate > 0 {
			md.Attributes["framerate"] = info.FrameRate
		}
	}
	return md
}

func (p *Processor) derive(ctx context.Context, staged *Staged, ext string, kind model.Kind, warn func(string, error)) []artifact.Artifact {
	var out []artifact.Artifact
	thumbs := p.cfg.Thumbnails

	switch kind {
	case model.KindImage:
		if !thumbs.Enabled || ext == "svg" {
			return nil
		}
		a, err := artifact.Thumbnail(staged.Path, thumbs.ImageWidth, thumbs.ImageHeight)
		if err != nil {
			warn("thumbnail", err)
			return nil
		}
		out = append(out, a)

	case model.KindVideo:
		if !thumbs.Enabled {
			return nil
		}
		a, err := artifact.VideoThumbnail(ctx, p.runner, staged.Path, thumbs.VideoAt, thumbs.VideoWidth, thumbs.VideoHeight)
		if err != nil {
			warn("thumbnail", err)
			return nil
		}
		out = append(out, a)

	case model.KindAudio:
		if p.cfg.Waveform.Enabled || p.cfg.Spectrogram.Enabled {
			out = append(out, p.audioArtifacts(ctx, staged, ext, warn)...)
		}
		if p.cfg.AlbumArt {
			data, mt, err := inspect.AlbumArt(staged.Path)
			switch {
			case err == nil:
				out = append(out, artifact.AlbumArt(data, mt))
			case !errors.Is(err, inspect.ErrNoAlbumArt):
				p.log.Debug("no album art", zap.Error(err))
			}
		}
	}
	return out
}

func (p *Processor) audioArtifacts(ctx context.Context, staged *Staged, ext string, warn func(string, error)) []artifact.Artifact {
	samples, rate, err := artifact.LoadSamples(ctx, staged.Path, ext, p.runner, p.cfg.MaxAnalysisSeconds)
	if err != nil {
		warn("samples", err)
		return nil
	}

	var out []artifact.Artifact
	if p.cfg.Waveform.Enabled {
		a, err := artifact.WaveformJSON(artifact.Waveform(samples, p.cfg.Waveform.Points), rate)
		if err != nil {
			warn("waveform", err)
		} else {
			out = append(out, a)
		}
	}
	if p.cfg.Spectrogram.Enabled && len(samples) > 0 {
		sc := p.cfg.Spectrogram
		a, err := artifact.Spectrogram(samples, artifact.SpectrogramOptions{
			FFTSize:  sc.FFTSize,
			HopSize:  sc.HopSize,
			Height:   sc.Height,
			MaxWidth: sc.MaxWidth,
		})
		if err != nil {
			warn("spectrogram", err)
		} else {
			out = append(out, a)
		}
	}
	return out
}

func setIf(attrs model.Attributes, key string, v int) {
	if v > 0 {
		attrs[key] = v
	}
}

func setIfString(attrs model.Attributes, key, v string) {
	if v != "" {
		attrs[key] = v
	}
}
