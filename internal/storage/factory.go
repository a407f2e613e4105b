package storage

import (
	"fmt"
	"strings"

	"mediaapi/internal/config"
)

// New returns the backend selected by cfg.Storage.Backend.
func New(cfg *config.AppConfig) (Storage, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", "minio", "s3":
		return NewMinIO(cfg.MinIO)
	case "local":
		return NewLocal(cfg.Storage.LocalDir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
