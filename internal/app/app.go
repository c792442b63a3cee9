package app

import (
	"context"
	"fmt"
	"os"

	"cotton-extractor/extractor"
	"cotton-extractor/internal/config"
	"cotton-extractor/internal/types"
	"cotton-extractor/services/cache"
	"cotton-extractor/services/storage"
	"cotton-extractor/utils"
	"github.com/sirupsen/logrus"
)

// App holds the collaborators shared by the CLI and the API server
type App struct {
	Settings  *config.Settings
	Config    *types.Config
	Logger    *logrus.Logger
	Catalog   *config.Catalog
	Files     *storage.FileSink
	Extractor *extractor.Extractor

	closers []func()
}

// NewLogger creates the logger with millisecond timestamps. LOG_LEVEL wins
// over the verbose flag.
func NewLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()

	// Set timestamp format with milliseconds
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	// Set log level from LOG_LEVEL env if present
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
		}
	} else if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// New wires the catalog, cache, sinks and extractor from settings
func New(ctx context.Context, settings *config.Settings, logger *logrus.Logger) (*App, error) {
	catalog, err := config.LoadCatalog(settings.CatalogFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings: settings,
		Config:   settings.ScrapeConfig(),
		Logger:   logger,
		Catalog:  catalog,
		Files:    storage.NewFileSink(settings.Storage.OutputDir),
	}

	sink, err := a.newSink(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Extractor = extractor.NewExtractor(extractor.Options{
		Config:     a.Config,
		Logger:     logger,
		Catalog:    catalog,
		NewBrowser: NewBrowserFactory(a.Config, logger),
		Sink:       sink,
		Rejections: a.newRejections(),
	})
	return a, nil
}

// Close releases sink connections
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewBrowserFactory returns a factory for the configured browser backend
func NewBrowserFactory(config *types.Config, logger types.Logger) extractor.BrowserFactory {
	return func(ctx context.Context) (types.Browser, error) {
		switch config.BrowserBackend {
		case "http":
			return utils.NewDocumentBrowser(utils.NewHTTPClient(config, logger), logger), nil
		case "selenium":
			browser := utils.NewSeleniumBrowser(config, logger)
			// Open and close one session to fail early when the hub is down
			page, err := browser.NewPage(ctx)
			if err != nil {
				return nil, err
			}
			_ = page.Close()
			return browser, nil
		default:
			client, err := utils.NewBrowserClient(ctx, config, logger)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
}

// newSink always writes JSON files and adds the remote sinks that are configured
func (a *App) newSink(ctx context.Context) (storage.Sink, error) {
	storageSettings := a.Settings.Storage
	sinks := storage.MultiSink{a.Files}

	if storageSettings.Redis.Addr != "" {
		redisSink := storage.NewRedisSink(storageSettings.Redis.Addr, storageSettings.Redis.DB, storageSettings.Redis.Stream, storageSettings.Redis.MaxLen)
		if err := redisSink.Ping(ctx); err != nil {
			_ = redisSink.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", storageSettings.Redis.Addr, err)
		}
		a.closers = append(a.closers, func() { _ = redisSink.Close() })
		sinks = append(sinks, redisSink)
		a.Logger.Infof("Publishing products to Redis stream %s", storageSettings.Redis.Stream)
	}

	if storageSettings.Mongo.URI != "" {
		mongoSink, err := storage.NewMongoSink(ctx, storageSettings.Mongo.URI, storageSettings.Mongo.Database, storageSettings.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = mongoSink.Close(context.Background()) })
		sinks = append(sinks, mongoSink)
		a.Logger.Infof("Upserting products into MongoDB %s.%s", storageSettings.Mongo.Database, storageSettings.Mongo.Collection)
	}

	if storageSettings.S3.Bucket != "" {
		s3Sink, err := storage.NewS3Sink(ctx, storageSettings.S3.Bucket, storageSettings.S3.Region, storageSettings.S3.Prefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
		a.Logger.Infof("Uploading batches to s3://%s/%s", storageSettings.S3.Bucket, storageSettings.S3.Prefix)
	}

	return sinks, nil
}

// newRejections builds the verification cache; an unreachable memcached
// falls back to memory
func (a *App) newRejections() *cache.Rejections {
	cacheSettings := a.Settings.Cache

	switch cacheSettings.Type {
	case "none":
		return cache.NewRejections(nil, cacheSettings.TTL)
	case "memcache":
		memcache := cache.NewMemcacheService(cacheSettings.MemcacheAddr)
		err := memcache.Ping()
		if err == nil {
			return cache.NewRejections(memcache, cacheSettings.TTL)
		}
		a.Logger.Warnf("Memcache at %s unavailable, using memory cache: %v", cacheSettings.MemcacheAddr, err)
	}
	return cache.NewRejections(cache.NewMemoryCache(), cacheSettings.TTL)
}
