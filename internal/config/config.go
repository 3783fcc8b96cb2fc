package config

import (
	_ "embed"
	"os"
	"strconv"

	"github.com/kozaktomas/classmark/internal/timetable"
)

//go:embed timetable.yaml
var timetableYAML []byte

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Gallery   GalleryConfig
	Server    ServerConfig
	Session   SessionConfig
	Timetable *timetable.Set
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 512
}

type GalleryConfig struct {
	// Backend selects the comparator: "embedding" (face embedding server)
	// or "hash" (local perceptual hash, no external service).
	Backend string
	// VerifyThreshold is the cosine distance cutoff for the embedding
	// backend. Zero means the built-in default.
	VerifyThreshold float64
	// HashThreshold is the distance cutoff for the hash backend. Zero means
	// the built-in default.
	HashThreshold float64
	// Indexed enables the HNSW-backed resolver instead of the linear scan.
	Indexed bool
}

type ServerConfig struct {
	Port         int    // defaults to 8080
	CookieSecret string // HMAC key for login cookies
}

type SessionConfig struct {
	// DefaultDurationMinutes is the attendance window length used when the
	// teacher does not pick one (default 60).
	DefaultDurationMinutes int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	tt, err := timetable.Parse(timetableYAML)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to parse embedded timetable.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Gallery: GalleryConfig{
			Backend:         envString("GALLERY_BACKEND", "embedding"),
			VerifyThreshold: envFloat("GALLERY_VERIFY_THRESHOLD", 0),
			HashThreshold:   envFloat("GALLERY_HASH_THRESHOLD", 0),
			Indexed:         os.Getenv("GALLERY_INDEXED") == "true",
		},
		Server: ServerConfig{
			Port:         envInt("SERVER_PORT", 8080),
			CookieSecret: os.Getenv("COOKIE_SECRET"),
		},
		Session: SessionConfig{
			DefaultDurationMinutes: envInt("SESSION_DEFAULT_DURATION_MINUTES", 60),
		},
		Timetable: tt,
	}
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}
