package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects the object storage backend.
// Backend is "minio" (default) or "local"; LocalDir is only used for "local".
type StorageConfig struct {
	Backend          string
	LocalDir         string
	PresignExpirySec int
}

// CacheConfig sizes the in-memory metadata cache keyed by checksum.
type CacheConfig struct {
	Size   int
	TTLSec int
}

// IntegrityConfig controls the scheduled checksum verification sweep.
type IntegrityConfig struct {
	Enabled   bool
	Schedule  string
	BatchSize int
}

// ThumbnailConfig sizes generated thumbnails. VideoAt is the frame timestamp in seconds.
type ThumbnailConfig struct {
	Enabled     bool    `toml:"enabled"`
	ImageWidth  int     `toml:"image_width"`
	ImageHeight int     `toml:"image_height"`
	VideoWidth  int     `toml:"video_width"`
	VideoHeight int     `toml:"video_height"`
	VideoAt     float64 `toml:"video_at"`
}

// WaveformConfig controls waveform peak generation for audio.
type WaveformConfig struct {
	Enabled bool `toml:"enabled"`
	Points  int  `toml:"points"`
}

// SpectrogramConfig controls spectrogram rendering for audio.
type SpectrogramConfig struct {
	Enabled  bool `toml:"enabled"`
	FFTSize  int  `toml:"fft_size"`
	HopSize  int  `toml:"hop_size"`
	Height   int  `toml:"height"`
	MaxWidth int  `toml:"max_width"`
}

// ProcessingConfig holds the media pipeline knobs. Defaults come from
// DefaultProcessing, an optional TOML file (PROCESSING_CONFIG) overrides them,
// and environment variables override the file.
type ProcessingConfig struct {
	TempDir            string              `toml:"temp_dir"`
	MaxUploadBytes     int64               `toml:"max_upload_bytes"`
	StrictMIME         bool                `toml:"strict_mime"`
	AllowedExtensions  map[string][]string `toml:"allowed_extensions"`
	MaxAnalysisSeconds int                 `toml:"max_analysis_seconds"`
	ProbeTimeoutSec    int                 `toml:"probe_timeout_sec"`
	AlbumArt           bool                `toml:"album_art"`
	Thumbnails         ThumbnailConfig     `toml:"thumbnails"`
	Waveform           WaveformConfig      `toml:"waveform"`
	Spectrogram        SpectrogramConfig   `toml:"spectrogram"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	Environment string
	LogLevel    string
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Storage     StorageConfig
	Cache       CacheConfig
	Integrity   IntegrityConfig
	Processing  ProcessingConfig
}

// DefaultProcessing returns the pipeline defaults.
func DefaultProcessing() ProcessingConfig {
	return ProcessingConfig{
		TempDir:        os.TempDir(),
		MaxUploadBytes: 512 << 20,
		AllowedExtensions: map[string][]string{
			"image":    {"jpg", "jpeg", "png", "gif", "webp", "svg"},
			"document": {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "rtf", "odt"},
			"video":    {"mp4", "webm", "mov", "avi", "mkv"},
			"audio":    {"mp3", "wav", "ogg", "flac", "m4a"},
		},
		MaxAnalysisSeconds: 600,
		ProbeTimeoutSec:    30,
		AlbumArt:           true,
		Thumbnails: ThumbnailConfig{
			Enabled:     true,
			ImageWidth:  320,
			ImageHeight: 320,
			VideoWidth:  640,
			VideoHeight: 360,
		},
		Waveform: WaveformConfig{
			Enabled: true,
			Points:  100,
		},
		Spectrogram: SpectrogramConfig{
			Enabled:  true,
			FFTSize:  1024,
			HopSize:  512,
			Height:   256,
			MaxWidth: 1024,
		},
	}
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	processing, err := LoadProcessing(getEnv("PROCESSING_CONFIG", ""))
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		AppHost:     getEnv("APP_HOST", "localhost:8080"),
		Port:        getEnv("PORT", "8080"), // default only for non-sensitive value
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Storage: StorageConfig{
			Backend:          getEnv("STORAGE_BACKEND", "minio"),
			LocalDir:         getEnv("STORAGE_LOCAL_DIR", "./media"),
			PresignExpirySec: getEnvInt("PRESIGN_EXPIRY_SEC", 900),
		},
		Cache: CacheConfig{
			Size:   getEnvInt("METADATA_CACHE_SIZE", 1024),
			TTLSec: getEnvInt("METADATA_CACHE_TTL_SEC", 3600),
		},
		Integrity: IntegrityConfig{
			Enabled:   getEnvBool("INTEGRITY_ENABLED", true),
			Schedule:  getEnv("INTEGRITY_SCHEDULE", "@daily"),
			BatchSize: getEnvInt("INTEGRITY_BATCH_SIZE", 100),
		},
		Processing: processing,
	}, nil
}

// LoadProcessing builds the pipeline configuration: defaults, then the TOML
// file at path (skipped when path is empty), then environment overrides.
func LoadProcessing(path string) (ProcessingConfig, error) {
	cfg := DefaultProcessing()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return ProcessingConfig{}, fmt.Errorf("read processing config %s: %w", path, err)
		}
	}

	cfg.TempDir = getEnv("TEMP_DIR", cfg.TempDir)
	cfg.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.StrictMIME = getEnvBool("STRICT_MIME", cfg.StrictMIME)
	cfg.Thumbnails.Enabled = getEnvBool("THUMBNAILS_ENABLED", cfg.Thumbnails.Enabled)
	cfg.Waveform.Enabled = getEnvBool("WAVEFORM_ENABLED", cfg.Waveform.Enabled)
	cfg.Spectrogram.Enabled = getEnvBool("SPECTROGRAM_ENABLED", cfg.Spectrogram.Enabled)

	if cfg.MaxUploadBytes <= 0 {
		return ProcessingConfig{}, fmt.Errorf("max_upload_bytes must be positive, got %d", cfg.MaxUploadBytes)
	}
	if cfg.Waveform.Points <= 0 {
		cfg.Waveform.Points = 100
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}
