// Package server contains the HTTP handlers for the media feed API.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"momento/internal/cache"
	"momento/internal/config"
	"momento/internal/featureflags"
	"momento/internal/middleware"
	"momento/internal/models"
	"momento/internal/moderation"
	"momento/internal/repository"
	"momento/internal/service"
	"momento/internal/storage"
	"momento/internal/transcode"
	"momento/internal/validation"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the collaborators the server is built from. ReadDB and Redis are optional.
type Deps struct {
	DB         *gorm.DB
	ReadDB     *gorm.DB
	Redis      *redis.Client
	Objects    storage.ObjectStore
	Classifier moderation.Classifier
	Transcoder transcode.Transcoder
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	verifier       *middleware.TokenVerifier
	featureFlags   *featureflags.Manager
	objects        storage.ObjectStore
	limits         validation.Limits

	mediaService      *service.MediaService
	moderationService *service.ModerationService
	transcodeService  *service.TranscodeService
	engagementService *service.EngagementService
	socialService     *service.SocialService
	feedService       *service.FeedService
	commentService    *service.CommentService
}

// NewServer wires repositories and services over deps.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	if deps.Objects == nil || deps.Classifier == nil || deps.Transcoder == nil {
		return nil, errors.New("object store, classifier and transcoder are required")
	}
	ladder, err := transcode.ParseLadder(cfg.TranscodeLadder)
	if err != nil {
		return nil, fmt.Errorf("transcode ladder: %w", err)
	}
	if len(ladder) == 0 {
		return nil, errors.New("transcode ladder is empty")
	}
	readDB := deps.ReadDB
	if readDB == nil {
		readDB = deps.DB
	}

	store := cache.NewStore(deps.Redis)
	flags := featureflags.NewManager(cfg.FeatureFlags)
	limits := validation.LimitsFromMB(cfg.PhotoMaxMB, cfg.VideoMaxMB)

	postRepo := repository.NewPostRepository(deps.DB, store)
	renditionRepo := repository.NewRenditionRepository(deps.DB)
	engagementRepo := repository.NewEngagementRepository(deps.DB)
	socialRepo := repository.NewSocialRepository(deps.DB)
	moderationRepo := repository.NewModerationRepository(deps.DB)
	commentRepo := repository.NewCommentRepository(deps.DB)

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("momento-api"),
		verifier:       middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		featureFlags:   flags,
		objects:        deps.Objects,
		limits:         limits,
	}

	s.engagementService = service.NewEngagementService(deps.DB, postRepo, engagementRepo, store, flags,
		service.ScoreWeightsFromConfig(cfg), time.Duration(cfg.ViewDedupeMinutes)*time.Minute)
	s.socialService = service.NewSocialService(deps.DB, postRepo, socialRepo, s.engagementService)
	s.moderationService = service.NewModerationService(deps.DB, postRepo, moderationRepo, deps.Classifier, deps.Objects, store)
	s.transcodeService = service.NewTranscodeService(deps.DB, postRepo, renditionRepo, deps.Transcoder, deps.Objects, store,
		service.TranscodeOptions{
			Ladder:      ladder,
			CallbackURL: cfg.TranscoderCallbackURL,
			Tokens:      transcode.NewCallbackTokens(cfg.TranscoderCallbackSecret, 0),
		})
	s.mediaService = service.NewMediaService(postRepo, deps.Objects, limits, flags, s.moderationService)
	s.feedService = service.NewFeedService(
		repository.NewFeedRepository(readDB),
		repository.NewRenditionRepository(readDB),
		repository.NewEngagementRepository(readDB),
		repository.NewSocialRepository(readDB),
		deps.Objects, flags,
		service.FeedLimits{Default: cfg.FeedDefaultLimit, Max: cfg.FeedMaxLimit},
	)
	s.commentService = service.NewCommentService(deps.DB, postRepo, commentRepo, s.engagementService)

	// The in-process worker pool reports through the same path as remote callbacks.
	if pool, ok := deps.Transcoder.(interface{ Attach(transcode.Reporter) }); ok {
		pool.Attach(s.transcodeService)
	}

	return s, nil
}

// App builds a Fiber app with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Momento API",
		BodyLimit:    int(s.limits.VideoMaxBytes) + 1<<20,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	return respondError(c, err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses keep
	// their CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  "RATE_LIMITED",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Object store endpoints authenticate with the signed token in the URL.
	objects := app.Group("/storage")
	objects.Put("/upload/*", s.PutObject)
	objects.Get("/object/*", s.GetObject)

	auth := middleware.AuthRequired(s.verifier, s.redis)

	media := app.Group("/media")
	// Transcoders authenticate with the per-job callback token, not a session.
	media.Post("/transcode/callback", s.TranscodeCallback)
	media.Post("/upload", auth, middleware.RateLimit(s.redis, 30, time.Minute, "upload"), s.UploadMedia)
	media.Post("/moderate", auth, s.ModerateMedia)
	media.Post("/transcode", auth, s.StartTranscode)
	media.Get("/:id/comments", auth, s.GetComments)
	media.Get("/:id", auth, s.GetMedia)

	engagement := app.Group("/engagement", auth)
	engagement.Post("/like", s.Like)
	engagement.Post("/bookmark", s.Bookmark)
	engagement.Post("/share", s.Share)
	engagement.Post("/view", s.View)
	engagement.Post("/comment", middleware.RateLimit(s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	engagement.Delete("/comment/:commentId", s.DeleteComment)

	social := app.Group("/social", auth)
	social.Post("/follow", middleware.RateLimit(s.redis, 60, time.Minute, "follow"), s.Follow)

	app.Get("/feed", auth, s.GetFeed)
	app.Get("/flags", auth, s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis only backs caches and view de-duplication, so its absence degrades
	// rather than fails readiness.
	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus != "healthy":
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
