// Package app provides the main application setup and dependency injection.
package app

import (
	"context"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/config"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/extractors"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/publisher"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/registry"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/session"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/store"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/telegram"
)

// App is the main application container.
type App struct {
	Config       *config.Config
	Log          *logging.Logger
	HTTPClient   *httpclient.Client
	Store        *store.RedisStore
	ExtractorReg *registry.ExtractorRegistry
	Bot          *telegram.Bot
}

// New creates and initializes the application.
func New(ctx context.Context) (*App, error) {
	cfg := config.Load()

	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing extractor bot", "log_level", cfg.LogLevel)

	opts := []httpclient.Option{httpclient.WithTimeout(cfg.HTTPTimeout)}
	if cfg.ProxyURL != "" {
		opts = append(opts, httpclient.WithProxy(cfg.ProxyURL))
	}
	httpClient := httpclient.New(log, opts...)

	st, err := store.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		return nil, err
	}

	if err := store.SeedAppxAPIs(ctx, st, cfg.AppxAPIsFile, log); err != nil {
		log.WithError(err).Warn("APPX API directory seed failed")
	}

	extractorReg := registry.NewExtractorRegistry()
	registerExtractors(extractorReg, httpClient, log, st)

	pub, err := publisher.New(httpClient, log, cfg.DownloadDir, cfg.YtdlpPath, cfg.TraversalWorkers)
	if err != nil {
		return nil, err
	}

	runs := session.NewManager()

	api := telegram.NewAPI(httpClient, log, cfg.BotToken)
	bot := telegram.New(cfg, api, st, extractorReg, runs, pub, log)

	return &App{
		Config:       cfg,
		Log:          log,
		HTTPClient:   httpClient,
		Store:        st,
		ExtractorReg: extractorReg,
		Bot:          bot,
	}, nil
}

// Run starts the bot loop and blocks until the context ends.
func (a *App) Run(ctx context.Context) error {
	a.Log.Info("starting extractor bot")
	return a.Bot.Run(ctx)
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Log.Info("shutting down application")
	a.ExtractorReg.Close()
	if err := a.Store.Close(); err != nil {
		a.Log.WithError(err).Warn("store close failed")
	}
}

// registerExtractors registers all platform extractors.
// Add new platforms here by:
// 1. Creating a new extractor in pkg/extractors/
// 2. Registering it below
func registerExtractors(
	reg *registry.ExtractorRegistry,
	client *httpclient.Client,
	log *logging.Logger,
	st *store.RedisStore,
) {
	reg.Register(extractors.NewClassPlusExtractor(client, log))
	reg.Register(extractors.NewPhysicsWallahExtractor(client, log))
	reg.Register(extractors.NewUtkarshExtractor(client, log))
	reg.Register(extractors.NewStudyIQExtractor(client, log))
	reg.Register(extractors.NewVisionIASExtractor(client, log))
	reg.Register(extractors.NewCareerWillExtractor(client, log))
	reg.Register(extractors.NewMyPathshalaExtractor(client, log))
	reg.Register(extractors.NewKDCampusExtractor(client, log))

	// White-label APPX apps resolve their API host through the store
	// directory, so the APPX extractor doubles as the fallback for
	// targets no named platform claims.
	appx := extractors.NewAppxExtractor(client, log, st)
	reg.Register(appx)
	reg.SetFallback(appx)

	log.Info("registered extractors", "count", len(reg.All()))
}
