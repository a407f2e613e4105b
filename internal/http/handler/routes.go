package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediaapi/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers only translate between HTTP and the media service.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.MediaService) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/inspect", InspectMedia(svc))

	media := app.Group("/media")
	media.Get("/", ListMedia(svc))
	media.Post("/", UploadMedia(svc))
	media.Get("/slug/:slug", GetMediaBySlug(svc))
	media.Get("/:id", GetMedia(svc))
	media.Patch("/:id", UpdateMedia(svc))
	media.Delete("/:id", DeleteMedia(svc))
	media.Put("/:id/file", ReplaceMedia(svc))
	media.Get("/:id/download", DownloadMedia(svc))
	media.Get("/:id/url", PresignMedia(svc))
	media.Get("/:id/artifacts/:kind", DownloadArtifact(svc))
	media.Get("/:id/verify", VerifyMedia(svc))
	media.Get("/:id/frame", MediaFrame(svc))
}
