// Package bootstrap connects the external collaborators the API runs against.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"momento/internal/cache"
	"momento/internal/config"
	"momento/internal/database"
	"momento/internal/middleware"
	"momento/internal/moderation"
	"momento/internal/observability"
	"momento/internal/resilience"
	"momento/internal/storage"
	"momento/internal/transcode"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	ApplySchema bool
	// LocalTranscodeDelay slows the in-process transcoder so clients can
	// observe the processing state.
	LocalTranscodeDelay time.Duration
}

// Runtime holds the connected collaborators. Redis and Pool may be nil.
type Runtime struct {
	DB         *gorm.DB
	ReadDB     *gorm.DB
	Redis      *redis.Client
	Objects    *storage.LocalStore
	Classifier moderation.Classifier
	Transcoder transcode.Transcoder
	Pool       *transcode.LocalPool

	shutdownTracing func(context.Context) error
}

// InitRuntime connects to the databases and Redis and builds the media collaborators.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "momento-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	rt := &Runtime{shutdownTracing: shutdownTracing}

	rt.DB, err = database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if opts.ApplySchema {
		if err := database.ApplySchema(ctx, rt.DB, cfg); err != nil {
			return nil, fmt.Errorf("schema apply failed: %w", err)
		}
	}
	rt.ReadDB, err = database.ConnectReader(cfg, rt.DB)
	if err != nil {
		return nil, err
	}

	// Redis backs caches, view de-duplication and rate limits, all of which
	// degrade to no-ops without it.
	rt.Redis, err = cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without cache", slog.String("error", err.Error()))
		rt.Redis = nil
	}

	rt.Objects, err = storage.NewLocalStore(storage.LocalOptions{
		Root:        cfg.StorageDir,
		PublicURL:   cfg.StoragePublicURL,
		Secret:      cfg.StorageSigningSecret,
		UploadTTL:   time.Duration(cfg.UploadURLTTLMinutes) * time.Minute,
		DownloadTTL: time.Duration(cfg.DownloadURLTTLMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init failed: %w", err)
	}

	rt.Classifier, err = newClassifier(cfg)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.TranscoderDriver) {
	case "http":
		if cfg.TranscoderURL == "" {
			return nil, errors.New("TRANSCODER_URL is required for the http transcoder")
		}
		rt.Transcoder = transcode.NewHTTPDispatcher(cfg.TranscoderURL, 10*time.Second, resilience.DefaultBreakerSettings)
	default:
		rt.Pool = transcode.NewLocalPool(rt.Objects, cfg.TranscoderWorkers, 64, opts.LocalTranscodeDelay)
		rt.Transcoder = rt.Pool
	}

	return rt, nil
}

func newClassifier(cfg *config.Config) (moderation.Classifier, error) {
	switch strings.ToLower(cfg.ModerationDriver) {
	case "http":
		if cfg.ModerationURL == "" {
			return nil, errors.New("MODERATION_URL is required for the http classifier")
		}
		timeout := time.Duration(cfg.ModerationTimeoutSeconds) * time.Second
		return moderation.NewHTTPClassifier(cfg.ModerationURL, cfg.ModerationAPIKey, timeout, resilience.DefaultBreakerSettings), nil
	default:
		return moderation.NewKeywordClassifier(cfg.ModerationBlocklist), nil
	}
}

// Close releases connections and flushes traces.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Pool != nil {
		rt.Pool.Wait()
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if rt.ReadDB != nil && rt.ReadDB != rt.DB {
		if err := database.Close(rt.ReadDB); err != nil {
			errs = append(errs, fmt.Errorf("close read replica: %w", err))
		}
	}
	if err := database.Close(rt.DB); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if rt.shutdownTracing != nil {
		if err := rt.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
