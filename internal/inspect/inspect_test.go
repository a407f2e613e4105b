package inspect

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ffmocks "mediaapi/internal/ffmpeg/mocks"
)

func TestExtension(t *testing.T) {
	assert.Equal(t, "pdf", Extension("Report.PDF"))
	assert.Equal(t, "gz", Extension("archive.tar.gz"))
	assert.Equal(t, "", Extension("README"))
	assert.Equal(t, "", Extension(""))
}

func TestChecksum(t *testing.T) {
	// sha256("hello world")
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

	got, err := Checksum(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	t.Run("stable across reads", func(t *testing.T) {
		data := strings.Repeat("0123456789abcdef", 1000)
		first, err := Checksum(strings.NewReader(data))
		require.NoError(t, err)
		second, err := Checksum(iotest.OneByteReader(strings.NewReader(data)))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("file", func(t *testing.T) {
		path := writeFile(t, "hello.txt", []byte("hello world"))
		got, err := ChecksumFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("read error", func(t *testing.T) {
		_, err := Checksum(iotest.ErrReader(errors.New("disk gone")))
		assert.ErrorContains(t, err, "disk gone")
	})
}

func TestDetectMIME(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name        string
		header      []byte
		filename    string
		want        string
		wantSniffed bool
	}{
		{"png signature", pngHeader, "whatever.bin", "image/png", true},
		{"pdf signature", []byte("%PDF-1.4\n"), "doc", "application/pdf", true},
		{"text strips charset", []byte("plain words\n"), "notes.txt", "text/plain", true},
		{"binary falls back to extension", []byte{0x00, 0x01, 0x02, 0xfe, 0xff}, "scan.PDF", "application/pdf", false},
		{"empty falls back to extension", nil, "photo.jpg", "image/jpeg", false},
		{"unknown extension", []byte{0x00, 0x01, 0x02}, "blob.zzz", OctetStream, false},
		{"no extension", nil, "blob", OctetStream, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sniffed := DetectMIME(tt.header, tt.filename)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSniffed, sniffed)
		})
	}
}

func TestDetectMIMEFile(t *testing.T) {
	path := writePNG(t, 4, 4)
	got, sniffed, err := DetectMIMEFile(path, "pic.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", got)
	assert.True(t, sniffed)

	got, sniffed, err = DetectMIMEFile("/does/not/exist", "song.mp3")
	assert.Error(t, err)
	assert.Equal(t, "audio/mpeg", got)
	assert.False(t, sniffed)
}

func TestMIMEByExtension(t *testing.T) {
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", MIMEByExtension("DOCX"))
	assert.Equal(t, "video/x-matroska", MIMEByExtension(".mkv"))
	assert.Equal(t, OctetStream, MIMEByExtension(""))
}

func TestCountPages(t *testing.T) {
	t.Run("pdf", func(t *testing.T) {
		n, err := CountPages(writePDF(t, 3), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("docx body paragraphs", func(t *testing.T) {
		n, err := CountPages(writeDocx(t), MIMEByExtension("docx"))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("pptx slides", func(t *testing.T) {
		n, err := CountPages(writePptx(t, 4), MIMEByExtension("pptx"))
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("xlsx sheets", func(t *testing.T) {
		n, err := CountPages(writeXlsx(t, "Second", "Third"), MIMEByExtension("xlsx"))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("text lines", func(t *testing.T) {
		cases := map[string]int{
			"":           0,
			"one":        1,
			"one\n":      1,
			"a\nb\nc":    3,
			"a\n\nb\n":   3,
			"\n\n\n\n\n": 5,
		}
		for content, want := range cases {
			n, err := CountPages(writeFile(t, "t.txt", []byte(content)), "text/plain")
			require.NoError(t, err)
			assert.Equal(t, want, n, "content %q", content)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := CountPages(writePNG(t, 2, 2), "image/png")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		_, err := CountPages(writeFile(t, "bad.pdf", []byte("%PDF-1.4\ngarbage")), "application/pdf")
		assert.Error(t, err)
	})

	t.Run("docx without document part", func(t *testing.T) {
		path := writeZip(t, "empty.docx", map[string]string{"a.txt": "x"}, []string{"a.txt"})
		_, err := CountPages(path, MIMEByExtension("docx"))
		assert.Error(t, err)
	})
}

func TestExtractText(t *testing.T) {
	t.Run("pdf", func(t *testing.T) {
		text, err := ExtractText(writeTextPDF(t, "Hello PDF"), "application/pdf")
		require.NoError(t, err)
		assert.Contains(t, text, "Hello PDF")
	})

	t.Run("docx body paragraphs", func(t *testing.T) {
		text, err := ExtractText(writeDocx(t), MIMEByExtension("docx"))
		require.NoError(t, err)
		assert.Equal(t, "One\nTwo\n", text)
	})

	t.Run("text lines are trimmed", func(t *testing.T) {
		text, err := ExtractText(writeFile(t, "t.txt", []byte("  one \r\n\ttwo\nthree")), "text/plain; charset=utf-8")
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\nthree", text)
	})

	t.Run("empty text", func(t *testing.T) {
		text, err := ExtractText(writeFile(t, "t.txt", nil), "text/plain")
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := ExtractText(writePptx(t, 1), MIMEByExtension("pptx"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		_, err := ExtractText(writeFile(t, "bad.pdf", []byte("%PDF-1.4\ngarbage")), "application/pdf")
		assert.Error(t, err)
	})
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abc", 5))
	assert.Equal(t, "ab", truncateText("abcdef", 2))
	assert.Equal(t, "a", truncateText("aé", 2), "a rune is never split")
}

func TestImageDimensions(t *testing.T) {
	w, h, err := ImageDimensions(writePNG(t, 40, 20))
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)

	_, _, err = ImageDimensions(writeFile(t, "x.png", []byte("not an image")))
	assert.Error(t, err)
}

func TestAudioInfo_WAV(t *testing.T) {
	path := writeWAV(t, 8000, 2)

	meta, err := AudioInfo(context.Background(), nil, path, "wav")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, meta.DurationSeconds, 0.01)
	assert.Equal(t, 8000, meta.SampleRate)
	assert.Equal(t, 1, meta.Channels)
	assert.Equal(t, 128, meta.BitrateKbps)
	assert.Equal(t, "WAVE", meta.Codec)
}

func TestAudioInfo_ProbeFallback(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "song.flac", []byte("not really flac"))

	runner := new(ffmocks.MockRunner)
	runner.On("Probe", ctx, path).Return(`{
		"streams": [{"codec_type": "audio", "codec_name": "flac", "sample_rate": "44100", "channels": 2}],
		"format": {"duration": "61.5", "bit_rate": "900000",
		           "tags": {"ARTIST": "Band", "ALBUM": "Record", "TITLE": "Song", "GENRE": "Rock", "track": "3/12"}}
	}`, nil)

	meta, err := AudioInfo(ctx, runner, path, "flac")
	require.NoError(t, err)
	assert.Equal(t, 61.5, meta.DurationSeconds)
	assert.Equal(t, 900, meta.BitrateKbps)
	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "flac", meta.Codec)
	assert.Equal(t, "Band", meta.Artist)
	assert.Equal(t, "Record", meta.Album)
	assert.Equal(t, "Song", meta.Title)
	assert.Equal(t, "Rock", meta.Genre)
	assert.Equal(t, 3, meta.TrackNumber)
	runner.AssertExpectations(t)
}

func TestAudioInfo_Errors(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "a.ogg", []byte("junk"))

	_, err := AudioInfo(ctx, nil, path, "ogg")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	runner := new(ffmocks.MockRunner)
	runner.On("Probe", ctx, path).Return("", errors.New("ffprobe missing"))
	_, err = AudioInfo(ctx, runner, path, "ogg")
	assert.ErrorContains(t, err, "ffprobe missing")

	runner = new(ffmocks.MockRunner)
	runner.On("Probe", ctx, mock.Anything).Return(`{"streams":[{"codec_type":"video"}],"format":{}}`, nil)
	_, err = AudioInfo(ctx, runner, path, "ogg")
	assert.ErrorContains(t, err, "no audio stream")
}

func TestAlbumArt_NoTags(t *testing.T) {
	_, _, err := AlbumArt(writeWAV(t, 8000, 1))
	assert.Error(t, err)
}

func TestVideoInfo(t *testing.T) {
	ctx := context.Background()
	runner := new(ffmocks.MockRunner)
	runner.On("Probe", ctx, "clip.mp4").Return(`{
		"streams": [{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
		             "avg_frame_rate": "30000/1001"}],
		"format": {"duration": "12.5", "bit_rate": "1500000"}
	}`, nil)

	meta, err := VideoInfo(ctx, runner, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, VideoMeta{
		DurationSeconds: 12.5,
		Width:           1280,
		Height:          720,
		FrameRate:       29.97,
		BitrateKbps:     1500,
		Codec:           "h264",
	}, meta)

	runner = new(ffmocks.MockRunner)
	runner.On("Probe", ctx, "song.mp3").Return(`{"streams":[{"codec_type":"audio"}],"format":{}}`, nil)
	_, err = VideoInfo(ctx, runner, "song.mp3")
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func TestParseTrack(t *testing.T) {
	assert.Equal(t, 3, parseTrack("3/12"))
	assert.Equal(t, 7, parseTrack(" 7 "))
	assert.Equal(t, 0, parseTrack("x"))
	assert.Equal(t, 0, parseTrack(""))
}
