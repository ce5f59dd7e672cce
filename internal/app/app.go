package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/internal/database"
	"github.com/codera/memefeed/internal/handlers"
	"github.com/codera/memefeed/internal/messaging"
	"github.com/codera/memefeed/internal/middleware"
	"github.com/codera/memefeed/internal/repository"
	"github.com/codera/memefeed/internal/services"
	"github.com/codera/memefeed/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	auth     *services.AuthService
	handlers *handlers.Handlers
	consumer *messaging.InteractionConsumer
	router   *gin.Engine

	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	repos := &services.Repositories{
		Interactions: repository.NewPostgresInteractionRepository(db.PG, app.logger),
		Items:        repository.NewPostgresItemRepository(db.PG, app.logger),
		Users:        repository.NewPostgresUserRepository(db.PG, app.logger),
		Follows:      repository.NewNeo4jFollowRepository(db.Neo4j, app.logger),
	}

	app.services = services.New(cfg, app.logger, db.Redis, repos)
	app.auth = services.NewAuthService(cfg, app.logger)
	app.handlers = handlers.New(app.logger, db, app.services)

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}
	app.consumer = messaging.NewInteractionConsumer(cfg, validator, app.services.Cache, app.logger)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// StartConsumer launches the interaction consumer that keeps cache
// versions in step with write traffic.
func (a *App) StartConsumer() {
	ctx, cancel := context.WithCancel(context.Background())
	a.consumerCancel = cancel

	go func() {
		if err := a.consumer.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Error("Interaction consumer stopped")
		}
	}()
	a.logger.Info("Interaction consumer started")
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
	}
	if err := a.consumer.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing Kafka consumer")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.auth, a.logger))

		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/content-based/:userId", a.handlers.Recommendation.ContentBased)
			recommendations.GET("/tag-based", a.handlers.Recommendation.TagBased)
			recommendations.GET("/collaborative/:userId", a.handlers.Recommendation.Collaborative)
			recommendations.GET("/social/:userId", a.handlers.Recommendation.Social)
			recommendations.GET("/mixed/:userId", a.handlers.Recommendation.Mixed)
			recommendations.GET("/stats/:userId", a.handlers.Recommendation.Stats)
			recommendations.POST("/strategy/:userId", a.handlers.Recommendation.AdjustStrategy)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/cache/:family/bump", a.handlers.Admin.BumpCacheVersion)
			admin.POST("/cache/warm", a.handlers.Admin.WarmCache)
		}
	}

	a.router = router
}
