package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dastankg/orimi-merchen/database"
	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/handlers"
	"github.com/dastankg/orimi-merchen/internal/jobs"
	"github.com/dastankg/orimi-merchen/internal/logging"
	"github.com/dastankg/orimi-merchen/internal/provenance"
	"github.com/dastankg/orimi-merchen/internal/routes"
	"github.com/dastankg/orimi-merchen/internal/services"
	"github.com/dastankg/orimi-merchen/internal/storage"
	"github.com/dastankg/orimi-merchen/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WhatsApp webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	envLoaded := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if envLoaded {
		log.Info("loaded .env file")
	}

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.Media.Dir, 0o700); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}

	backend := services.NewBackendClient(cfg.Backend, log)
	media := services.NewMediaFetcher(cfg.Media, cfg.Twilio, cfg.Backend.Timeout, log)
	verifier := provenance.NewVerifier(provenance.Options{
		Location:  cfg.Location(),
		MaxAge:    cfg.Photo.MaxAge,
		Container: provenance.ExifToolReader{Binary: cfg.Photo.ExifToolBinary},
		Converter: provenance.NewNormalizer(log,
			provenance.HEICDecoder{},
			provenance.MagickConverter{Binary: cfg.Photo.ConvertBinary}),
		Logger: log,
	})

	engine, err := workflow.NewEngine(workflow.Deps{
		Store:       store,
		Directory:   backend,
		Assignments: backend,
		Stores:      backend,
		Geofence:    backend,
		Media:       media,
		Verifier:    verifier,
		Submitter:   services.NewSubmissionService(backend, catalog, log),
		Catalog:     catalog,
		Location:    cfg.Location(),
		MaxPhotoAge: cfg.Photo.MaxAge,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	var messenger services.Messenger = services.LogMessenger{Log: log}
	if cfg.TwilioConfigured() {
		tw, err := services.NewTwilioService(cfg.Twilio, log)
		if err != nil {
			return err
		}
		messenger = tw
	} else {
		log.Warn("Twilio credentials not found, replies are only logged")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Messages already accepted are answered even while shutting down.
	whatsapp := handlers.NewWhatsAppHandler(context.WithoutCancel(ctx), engine, messenger, media, log)
	health := handlers.NewHealthHandler(version, store, map[string]string{
		"exiftool": cfg.Photo.ExifToolBinary,
		"convert":  cfg.Photo.ConvertBinary,
	})

	app := fiber.New(fiber.Config{
		AppName:               "Orimi merchandising bot v" + version,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())

	routes.SetupRoutes(app, cfg, routes.Handlers{WhatsApp: whatsapp, Health: health}, log)

	janitor := jobs.NewScratchJanitor(cfg.Media.Dir, cfg.Janitor.Interval, cfg.Janitor.MaxAge, log)

	log.Info("starting server",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("twilio", cfg.TwilioConfigured()),
		zap.Bool("webhook_validation", cfg.Twilio.ValidateWebhook))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("gracefully shutting down")
		err := app.ShutdownWithTimeout(shutdownTimeout)
		whatsapp.Wait()
		return err
	})

	return g.Wait()
}

func openStore(cfg *config.Config, log *zap.Logger) (storage.SessionStore, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory session storage, sessions are lost on restart")
		return storage.NewMemoryStore(), nil
	}

	db, err := database.Open(cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewDatabaseStore(db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	log.Info("using database session storage", zap.String("driver", cfg.Storage.Driver))
	return store, nil
}
