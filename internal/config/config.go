package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	ListenAddr       string
	BackendBaseURL   string
	ManifestPath     string
	OutboxPath       string
	RedisAddr        string
	RedisDB          int
	RedisPassword    string
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	LockTTLSeconds   int
	SyncCheckSeconds int
	DevMode          bool
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       getenv("KUMO_LISTEN_ADDR", ":8080"),
		BackendBaseURL:   getenv("KUMO_BACKEND_BASE_URL", ""),
		ManifestPath:     getenv("KUMO_MANIFEST_PATH", "manifest.yaml"),
		OutboxPath:       getenv("KUMO_OUTBOX_PATH", "./data/outbox"),
		RedisAddr:        getenv("KUMO_REDIS_ADDR", ""),
		RedisDB:          getenvInt("KUMO_REDIS_DB", 0),
		RedisPassword:    os.Getenv("KUMO_REDIS_PASSWORD"),
		S3Endpoint:       getenv("KUMO_S3_ENDPOINT", ""),
		S3Region:         getenv("KUMO_S3_REGION", ""),
		S3Bucket:         getenv("KUMO_S3_BUCKET", ""),
		S3AccessKey:      os.Getenv("KUMO_S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("KUMO_S3_SECRET_KEY"),
		LockTTLSeconds:   getenvInt("KUMO_LOCK_TTL_SECONDS", 30),
		SyncCheckSeconds: getenvInt("KUMO_SYNC_CHECK_SECONDS", 60),
		DevMode:          getenvBool("KUMO_DEV_MODE", false),
	}

	if cfg.BackendBaseURL == "" {
		return cfg, errors.New("KUMO_BACKEND_BASE_URL is required")
	}
	if !cfg.DevMode {
		if cfg.RedisAddr == "" {
			return cfg, errors.New("KUMO_REDIS_ADDR is required")
		}
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return cfg, errors.New("S3 endpoint/bucket/access/secret are required")
		}
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
