// Package artifact derives secondary files from an uploaded original:
// thumbnails, waveform peaks, spectrogram images and cover art.
package artifact

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"mediaapi/internal/ffmpeg"
	"mediaapi/internal/model"
)

// Artifact is a derived file held in memory until it is stored.
type Artifact struct {
	Kind        model.ArtifactKind
	Name        string
	ContentType string
	Data        []byte
}

const thumbnailQuality = 85

// Thumbnail scales the image at path down to fit within width x height,
// honoring the EXIF orientation, and encodes it as JPEG. Smaller images are
// not enlarged.
func Thumbnail(path string, width, height int) (Artifact, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Artifact{}, fmt.Errorf("open image: %w", err)
	}
	thumb := imaging.Fit(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return Artifact{}, fmt.Errorf("encode thumbnail: %w", err)
	}
	return Artifact{
		Kind:        model.ArtifactThumbnail,
		Name:        "thumbnail.jpg",
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}

// VideoThumbnail grabs the frame at the given second, scaled to width x height.
func VideoThumbnail(ctx context.Context, runner ffmpeg.Runner, path string, at float64, width, height int) (Artifact, error) {
	if at < 0 {
		at = 0
	}
	data, err := runner.Frame(ctx, path, at, width, height)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Kind:        model.ArtifactThumbnail,
		Name:        "thumbnail.jpg",
		ContentType: "image/jpeg",
		Data:        data,
	}, nil
}

// AlbumArt wraps embedded cover art bytes.
func AlbumArt(data []byte, contentType string) Artifact {
	name := "album_art.jpg"
	switch contentType {
	case "image/png":
		name = "album_art.png"
	case "image/gif":
		name = "album_art.gif"
	case "image/webp":
		name = "album_art.webp"
	}
	return Artifact{
		Kind:        model.ArtifactAlbumArt,
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}
}
