package handler

import (
	"fmt"
	"math"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mediaapi/internal/model"
	"mediaapi/internal/service"
)

// presignResponse is returned by PresignMedia.
type presignResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

func validID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// formFile opens the multipart "file" field.
func formFile(c *fiber.Ctx) (*multipart.FileHeader, multipart.File, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	return fh, f, nil
}

func parseKind(s string) (model.Kind, error) {
	if s == "" {
		return "", nil
	}
	return model.ParseKind(s)
}

// ListMedia lists media with limit & offset, optionally filtered by kind and visibility.
//
// @Summary  List media
// @Tags     media
// @Produce  json
// @Param    limit  query int    false "page size" default(10)
// @Param    offset query int    false "offset"    default(0)
// @Param    kind   query string false "image, document, video or audio"
// @Param    public query bool   false "visibility filter"
// @Success  200 {object} service.MediaListResult
// @Failure  400 {object} errorPayload
// @Router   /media [get]
func ListMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		kind, err := parseKind(c.Query("kind"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_KIND", err.Error())
		}
		in := service.ListInput{Kind: kind, Limit: limit, Offset: offset}
		if v := c.Query("public"); v != "" {
			public, err := strconv.ParseBool(v)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_PUBLIC", "invalid public flag")
			}
			in.Public = &public
		}

		res, err := svc.List(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// UploadMedia stores a new file (multipart/form-data, field name: file).
//
// @Summary  Upload media
// @Tags     media
// @Accept   multipart/form-data
// @Produce  json
// @Param    file        formData file   true  "file to upload"
// @Param    kind        formData string false "inferred from the extension when omitted"
// @Param    title       formData string false "title"
// @Param    description formData string false "description"
// @Param    alt_text    formData string false "alt text (images)"
// @Param    is_public   formData bool   false "public flag"
// @Success  201 {object} model.MediaFile
// @Failure  400 {object} errorPayload
// @Failure  409 {object} errorPayload
// @Failure  413 {object} errorPayload
// @Failure  415 {object} errorPayload
// @Router   /media [post]
func UploadMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, f, err := formFile(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		defer f.Close()

		kind, err := parseKind(c.FormValue("kind"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_KIND", err.Error())
		}
		public := false
		if v := c.FormValue("is_public"); v != "" {
			if public, err = strconv.ParseBool(v); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_PUBLIC", "invalid public flag")
			}
		}

		m, err := svc.Upload(c.UserContext(), service.UploadInput{
			Reader:      f,
			Filename:    fh.Filename,
			Kind:        kind,
			Size:        fh.Size,
			Title:       c.FormValue("title"),
			Description: c.FormValue("description"),
			AltText:     c.FormValue("alt_text"),
			IsPublic:    public,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}

// InspectMedia runs the processing pipeline on a file without storing it.
//
// @Summary  Inspect a file
// @Tags     media
// @Accept   multipart/form-data
// @Produce  json
// @Param    file formData file   true  "file to inspect"
// @Param    kind formData string false "inferred from the extension when omitted"
// @Success  200 {object} service.InspectResult
// @Failure  400 {object} errorPayload
// @Router   /inspect [post]
func InspectMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, f, err := formFile(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		defer f.Close()

		kind, err := parseKind(c.FormValue("kind"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_KIND", err.Error())
		}
		res, err := svc.Inspect(c.UserContext(), f, fh.Filename, kind)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetMedia returns a media record by ID.
//
// @Summary  Get media
// @Tags     media
// @Produce  json
// @Param    id path string true "media id"
// @Success  200 {object} model.MediaFile
// @Failure  404 {object} errorPayload
// @Router   /media/{id} [get]
func GetMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		m, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(m)
	}
}

// GetMediaBySlug returns a media record by slug.
//
// @Summary  Get media by slug
// @Tags     media
// @Produce  json
// @Param    slug path string true "slug"
// @Success  200 {object} model.MediaFile
// @Failure  404 {object} errorPayload
// @Router   /media/slug/{slug} [get]
func GetMediaBySlug(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := svc.GetBySlug(c.UserContext(), c.Params("slug"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(m)
	}
}

// UpdateMedia edits title, description, alt text and visibility.
//
// @Summary  Update media details
// @Tags     media
// @Accept   json
// @Produce  json
// @Param    id   path string               true "media id"
// @Param    body body service.DetailsInput true "fields to change"
// @Success  200 {object} model.MediaFile
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Router   /media/{id} [patch]
func UpdateMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var in service.DetailsInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		m, err := svc.UpdateDetails(c.UserContext(), id, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(m)
	}
}

// ReplaceMedia uploads new content for an existing record of the same kind.
//
// @Summary  Replace media file
// @Tags     media
// @Accept   multipart/form-data
// @Produce  json
// @Param    id   path     string true "media id"
// @Param    file formData file   true "replacement file"
// @Success  200 {object} model.MediaFile
// @Failure  404 {object} errorPayload
// @Failure  409 {object} errorPayload
// @Router   /media/{id}/file [put]
func ReplaceMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		fh, f, err := formFile(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		defer f.Close()

		m, err := svc.Replace(c.UserContext(), id, service.ReplaceInput{Reader: f, Filename: fh.Filename, Size: fh.Size})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(m)
	}
}

// DeleteMedia removes a record and its stored files.
//
// @Summary  Delete media
// @Tags     media
// @Param    id path string true "media id"
// @Success  204
// @Failure  404 {object} errorPayload
// @Router   /media/{id} [delete]
func DeleteMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func sendObject(c *fiber.Ctx, obj *service.Object, disposition string) error {
	c.Set(fiber.HeaderContentType, obj.ContentType)
	if obj.Filename != "" {
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, obj.Filename))
	}
	size := -1
	if obj.Size > 0 {
		size = int(obj.Size)
	}
	return c.SendStream(obj.Body, size)
}

// DownloadMedia streams the original file.
//
// @Summary  Download media
// @Tags     media
// @Produce  octet-stream
// @Param    id path string true "media id"
// @Success  200 {file} binary
// @Failure  404 {object} errorPayload
// @Router   /media/{id}/download [get]
func DownloadMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		obj, err := svc.Open(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return sendObject(c, obj, "attachment")
	}
}

// PresignMedia returns a temporary download URL.
//
// @Summary  Presigned download URL
// @Tags     media
// @Produce  json
// @Param    id      path  string true  "media id"
// @Param    expires query int    false "lifetime in seconds"
// @Success  200 {object} presignResponse
// @Failure  501 {object} errorPayload
// @Router   /media/{id}/url [get]
func PresignMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		expires, err := strconv.Atoi(c.Query("expires", "0"))
		if err != nil || expires < 0 || expires > int((7*24*time.Hour).Seconds()) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_EXPIRY", "invalid expiry")
		}
		url, err := svc.PresignURL(c.UserContext(), id, time.Duration(expires)*time.Second)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(presignResponse{URL: url, ExpiresIn: expires})
	}
}

// DownloadArtifact streams a derived artifact (thumbnail, waveform, spectrogram, album_art).
//
// @Summary  Download artifact
// @Tags     media
// @Param    id   path string true "media id"
// @Param    kind path string true "artifact kind"
// @Success  200 {file} binary
// @Failure  404 {object} errorPayload
// @Router   /media/{id}/artifacts/{kind} [get]
func DownloadArtifact(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		kind := model.ArtifactKind(c.Params("kind"))
		switch kind {
		case model.ArtifactThumbnail, model.ArtifactWaveform, model.ArtifactSpectrogram, model.ArtifactAlbumArt:
		default:
			return writeError(c, fiber.StatusBadRequest, "INVALID_ARTIFACT_KIND", "unknown artifact kind")
		}
		obj, err := svc.OpenArtifact(c.UserContext(), id, kind)
		if err != nil {
			return writeServiceError(c, err)
		}
		return sendObject(c, obj, "inline")
	}
}

// VerifyMedia recomputes the checksum of the stored original.
//
// @Summary  Verify integrity
// @Tags     media
// @Produce  json
// @Param    id path string true "media id"
// @Success  200 {object} service.IntegrityReport
// @Failure  404 {object} errorPayload
// @Router   /media/{id}/verify [get]
func VerifyMedia(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		report, err := svc.Verify(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(report)
	}
}

// MediaFrame returns a JPEG frame of a stored video.
//
// @Summary  Extract video frame
// @Tags     media
// @Produce  jpeg
// @Param    id path  string true  "media id"
// @Param    t  query number false "timestamp in seconds" default(0)
// @Success  200 {file} binary
// @Failure  422 {object} errorPayload
// @Router   /media/{id}/frame [get]
func MediaFrame(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		at, err := strconv.ParseFloat(c.Query("t", "0"), 64)
		if err != nil || at < 0 || math.IsNaN(at) || math.IsInf(at, 0) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_TIMESTAMP", "invalid timestamp")
		}
		data, err := svc.Frame(c.UserContext(), id, at)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentType, "image/jpeg")
		return c.Send(data)
	}
}
