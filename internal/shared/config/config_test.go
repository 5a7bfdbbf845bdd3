package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"PORT", "ENV", "OBJECT_STORE", "THUMBNAIL_OFFSET", "UPLOAD_CONCURRENCY", "PUBLIC_BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local store, got %q", cfg.ObjectStoreType)
	}
	if cfg.ThumbnailOffset != 8*time.Second {
		t.Fatalf("expected 8s thumbnail offset, got %s", cfg.ThumbnailOffset)
	}
	if cfg.UploadConcurrency != 3 {
		t.Fatalf("expected upload concurrency 3, got %d", cfg.UploadConcurrency)
	}
	if cfg.PublicBaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected public base url %q", cfg.PublicBaseURL)
	}
}

func TestLoadOverridesAndInvalidValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ENV", "prod")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("THUMBNAIL_OFFSET", "not-a-duration")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")
	t.Setenv("CORS_ALLOW_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("DATABASE_URL", "postgres://example")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Fatalf("expected s3 store, got %q", cfg.ObjectStoreType)
	}
	if cfg.ThumbnailOffset != 8*time.Second {
		t.Fatalf("invalid duration should fall back to default, got %s", cfg.ThumbnailOffset)
	}
	if cfg.UploadMaxBytes != 1024 {
		t.Fatalf("expected upload max 1024, got %d", cfg.UploadMaxBytes)
	}
	if len(cfg.CORSAllowOrigin) != 2 || cfg.CORSAllowOrigin[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowOrigin)
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	content := "LOG_LEVEL=debug\nS3_BUCKET=\"from-file\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	cfg := Load()
	if cfg.S3Bucket != "from-env" {
		t.Fatalf("environment should win over .env, got %q", cfg.S3Bucket)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LOG_LEVEL from .env, got %q", cfg.LogLevel)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring the previous one on cleanup (equivalent of testing.T.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
