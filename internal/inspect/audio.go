package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"mediaapi/internal/ffmpeg"
)

// AudioMeta describes an audio file. Zero values mean unknown.
type AudioMeta struct {
	DurationSeconds float64
	BitrateKbps     int
	SampleRate      int
	Channels        int
	Codec           string
	Artist          string
	Album           string
	Title           string
	Genre           string
	TrackNumber     int
}

// AudioInfo reads stream facts and tags. WAV and MP3 are decoded natively;
// other formats, or a failed native read, are probed with ffprobe when a
// runner is given. Tag read failures are ignored.
func AudioInfo(ctx context.Context, runner ffmpeg.Runner, path, ext string) (AudioMeta, error) {
	var (
		meta AudioMeta
		err  error
	)
	switch ext {
	case "wav":
		meta, err = wavInfo(path)
	case "mp3":
		meta, err = mp3Info(path)
	default:
		err = fmt.Errorf("%w: no native decoder for %q", ErrUnsupportedType, ext)
	}

	var probe *ffmpeg.ProbeResult
	if err != nil {
		if runner == nil {
			return AudioMeta{}, err
		}
		raw, perr := runner.Probe(ctx, path)
		if perr != nil {
			return AudioMeta{}, errors.Join(err, perr)
		}
		probe, perr = ffmpeg.ParseProbe(raw)
		if perr != nil {
			return AudioMeta{}, errors.Join(err, perr)
		}
		meta, perr = audioFromProbe(probe)
		if perr != nil {
			return AudioMeta{}, errors.Join(err, perr)
		}
	}

	if tags, terr := readTags(path); terr == nil {
		applyTags(&meta, tags)
	} else if probe != nil {
		s, _ := probe.AudioStream()
		meta.Artist = probe.Tag(s, "artist")
		meta.Album = probe.Tag(s, "album")
		meta.Title = probe.Tag(s, "title")
		meta.Genre = probe.Tag(s, "genre")
		meta.TrackNumber = parseTrack(probe.Tag(s, "track"))
	}
	return meta, nil
}

// AlbumArt returns the embedded cover picture and its MIME type.
func AlbumArt(path string) ([]byte, string, error) {
	m, err := readTags(path)
	if err != nil {
		return nil, "", err
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, "", ErrNoAlbumArt
	}
	mt := stripParams(pic.MIMEType)
	if !strings.HasPrefix(mt, "image/") {
		mt = stripParams(mimetype.Detect(pic.Data).String())
	}
	return pic.Data, mt, nil
}

func wavInfo(path string) (AudioMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return AudioMeta{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return AudioMeta{}, fmt.Errorf("invalid wav file")
	}
	dur, err := d.Duration()
	if err != nil {
		return AudioMeta{}, fmt.Errorf("wav duration: %w", err)
	}
	return AudioMeta{
		DurationSeconds: dur.Seconds(),
		BitrateKbps:     int(d.SampleRate) * int(d.NumChans) * int(d.BitDepth) / 1000,
		SampleRate:      int(d.SampleRate),
		Channels:        int(d.NumChans),
		Codec:           "WAVE",
	}, nil
}

// mp3Info decodes frame headers with go-mp3. The decoder always produces
// 16-bit stereo, so Length is four bytes per sample frame. The source channel
// layout is not exposed and stays unknown.
func mp3Info(path string) (AudioMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return AudioMeta{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return AudioMeta{}, err
	}
	d, err := mp3.NewDecoder(f)
	if err != nil {
		return AudioMeta{}, fmt.Errorf("decode mp3: %w", err)
	}
	rate := d.SampleRate()
	length := d.Length()
	if rate <= 0 || length <= 0 {
		return AudioMeta{}, fmt.Errorf("mp3 length unknown")
	}
	seconds := float64(length/4) / float64(rate)
	meta := AudioMeta{
		DurationSeconds: seconds,
		SampleRate:      rate,
		Codec:           "MP3",
	}
	if seconds > 0 {
		meta.BitrateKbps = int(float64(st.Size()*8) / seconds / 1000)
	}
	return meta, nil
}

func audioFromProbe(p *ffmpeg.ProbeResult) (AudioMeta, error) {
	s, ok := p.AudioStream()
	if !ok {
		return AudioMeta{}, fmt.Errorf("no audio stream")
	}
	return AudioMeta{
		DurationSeconds: p.Duration(),
		BitrateKbps:     p.BitrateKbps(s),
		SampleRate:      s.SampleRateHz(),
		Channels:        s.Channels,
		Codec:           s.CodecName,
	}, nil
}

func readTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	return m, nil
}

func applyTags(meta *AudioMeta, m tag.Metadata) {
	meta.Artist = m.Artist()
	meta.Album = m.Album()
	meta.Title = m.Title()
	meta.Genre = m.Genre()
	if track, _ := m.Track(); track > 0 {
		meta.TrackNumber = track
	}
	if meta.Codec == "" {
		meta.Codec = string(m.FileType())
	}
}

// parseTrack accepts "3" and "3/12".
func parseTrack(v string) int {
	v, _, _ = strings.Cut(strings.TrimSpace(v), "/")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
