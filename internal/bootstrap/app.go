package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"course-backend/internal/queue"
	"course-backend/internal/sections"
	"course-backend/internal/shared/config"
	"course-backend/internal/shared/server"
	"course-backend/internal/shared/storage/db"
	"course-backend/internal/shared/storage/object"
	localstore "course-backend/internal/shared/storage/object/local"
	s3store "course-backend/internal/shared/storage/object/s3"
	"course-backend/internal/shared/telemetry"
	"course-backend/internal/uploads"
)

// App holds shared dependencies and the router built from them.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Store           object.ObjectStore
	Presigner       uploads.Presigner
	Events          queue.Client
	SectionsRepo    sections.Repo
	SectionsService *sections.Service
	UploadsService  *uploads.Service
	SectionsHandler *sections.Handler
	UploadsHandler  *uploads.Handler
}

// Build prepares dependencies and wires routes.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}
	if err := buildStore(ctx, app); err != nil {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	if cfg.MediaEventsQueue != "" {
		events, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.MediaEventsQueue)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Events = events
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		SectionsHandler: app.SectionsHandler,
		UploadsHandler:  app.UploadsHandler,
		Health:          app.healthCheck,
	})
	return app, nil
}

// Close releases the database pool, if any.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func (a *App) healthCheck() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Ping()
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "err": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, app *App) error {
	cfg := app.Config
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return err
		}
		app.Store = store
		app.Presigner = uploads.NewS3Presigner(store.Client(), store.Bucket(), store.ObjectKey, cfg.SSEKMSKeyID)
	default:
		app.Store = localstore.New(cfg.LocalStoreDir)
	}
	return nil
}

func buildServices(app *App) {
	if app.DB != nil {
		app.SectionsRepo = &sections.PGRepo{DB: app.DB}
	} else {
		app.SectionsRepo = sections.NewMemoryRepo()
	}
	app.SectionsService = sections.NewService(app.SectionsRepo)
	app.SectionsService.Events = app.Events

	app.UploadsService = &uploads.Service{
		Store:      app.Store,
		Presigner:  app.Presigner,
		Sections:   app.SectionsService,
		APIBaseURL: app.Config.PublicBaseURL,
		MaxBytes:   app.Config.UploadMaxBytes,
	}
	if app.Presigner != nil {
		app.UploadsService.MediaBaseURL = mediaBaseURL(app.Config)
		if s, ok := app.Store.(*s3store.Store); ok {
			app.UploadsService.MediaKeyFor = s.ObjectKey
		}
	}

	app.SectionsHandler = sections.NewHandler(app.SectionsService)
	app.UploadsHandler = uploads.NewHandler(app.UploadsService)
}

func mediaBaseURL(cfg config.Config) string {
	if cfg.S3PublicBaseURL != "" {
		return cfg.S3PublicBaseURL
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.AWSRegion)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
