package main

// Compose a section from a YAML manifest against a running API:
//   go run ./cmd/composer -manifest section.yaml

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"course-backend/internal/composer"
	"course-backend/internal/courseapi"
	"course-backend/internal/media"
	"course-backend/internal/shared/config"
	"course-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	manifestPath := flag.String("manifest", "", "path to the section manifest (YAML)")
	apiURL := flag.String("api", cfg.ComposerAPIURL, "course API base URL")
	noThumbs := flag.Bool("no-thumbnails", false, "skip thumbnail extraction")
	flag.Parse()

	telemetry.Configure(cfg.LogLevel)
	defer telemetry.Sync()

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "usage: composer -manifest section.yaml [-api URL]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *manifestPath, *apiURL, !*noThumbs); err != nil {
		fmt.Fprintf(os.Stderr, "composer: %s\n", describeError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, manifestPath, apiURL string, thumbnails bool) error {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}
	client, err := courseapi.New(courseapi.Options{BaseURL: apiURL, MaxRetries: 2})
	if err != nil {
		return err
	}

	previews := composer.NewBlobManager()
	deps := composer.Deps{
		Uploads:           client,
		Persistence:       client,
		Previews:          previews,
		ThumbnailOffset:   cfg.ThumbnailOffset,
		UploadConcurrency: cfg.UploadConcurrency,
	}
	if thumbnails {
		x := media.NewExtractor(cfg.FFmpegPath, cfg.FFprobePath)
		if err := x.AssertReady(); err != nil {
			telemetry.Warn("composer.thumbnails.disabled", map[string]any{"err": err.Error()})
		} else {
			deps.Thumbnails = x
		}
	}

	var ctl *composer.Controller
	if m.SectionID > 0 {
		snap, err := client.GetSection(ctx, m.SectionID)
		if err != nil {
			return fmt.Errorf("load section %d: %w", m.SectionID, err)
		}
		ctl, err = composer.EditSection(ctx, snap, deps)
		if err != nil {
			return err
		}
	} else {
		ctl = composer.NewSection(m.CourseID, m.Order, deps)
	}

	if err := applyManifest(ctl, m, media.Describe); err != nil {
		_, _ = ctl.Discard()
		return err
	}
	ctl.Store().Wait()
	printDrafts(ctl)

	res, err := ctl.Commit(ctx)
	if err != nil {
		_, _ = ctl.Discard()
		return err
	}

	fmt.Printf("%s section %d committed\n", m.mode(), ctl.SectionID())
	for _, cr := range res.Created {
		fmt.Printf("  created %s -> %d\n", cr.TempID, cr.ID)
	}
	stats := previews.Stats()
	fmt.Printf("  previews acquired=%d released=%d live=%d\n", stats.Acquired, stats.Released, stats.Live)
	return nil
}

func (m Manifest) mode() string {
	if m.SectionID > 0 {
		return composer.ModeEdit.String()
	}
	return composer.ModeCreate.String()
}

func printDrafts(ctl *composer.Controller) {
	for _, d := range ctl.Store().Drafts() {
		detail := "-"
		switch {
		case d.Pending():
			detail = "upload " + d.Attachment.File.Name
			if d.Attachment.Thumbnail != "" {
				detail += " (thumbnail ready)"
			}
		case d.MediaURL() != "":
			detail = d.MediaURL()
		}
		fmt.Printf("  %2d. [%s] %-8s %q %s\n", d.Order, d.ID, d.Status, d.Title, detail)
	}
	for _, t := range ctl.Store().Tombstones() {
		fmt.Printf("   x  [%s] %q\n", t.ID, t.Title)
	}
}

func describeError(err error) string {
	var verr *composer.ValidationError
	var uerr *composer.UploadError
	var perr *composer.PersistenceError
	switch {
	case errors.As(err, &verr):
		return "invalid section: " + verr.Error()
	case errors.As(err, &uerr):
		return "upload failed, nothing was saved: " + uerr.Error()
	case errors.As(err, &perr):
		return "save failed: " + perr.Error()
	default:
		return err.Error()
	}
}
