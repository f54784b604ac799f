package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/events"
	"github.com/pavitra93/go-multi-tenant-blog/shared/metrics"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/repository"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tokens"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

func main() {
	cfg, err := config.Load("blog")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	cfg.Service.ConfigureLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Redis only caches tenant lookups here; the service works without it
	redisClient, err := utils.InitRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis, tenant cache disabled: %v", err)
	}
	defer utils.CloseRedis()

	verifier, err := tokens.NewVerifierFromConfig(cfg.JWT, cfg.Service.ClientURI)
	if err != nil {
		log.Fatal("Failed to initialize token verifier:", err)
	}

	resolver := tenancy.NewResolver(
		tenancy.NewGormCatalog(db),
		tenancy.NewRedisExistenceCache(redisClient, cfg.Service.TenantCacheTTL),
	)

	hub := events.NewHub()
	publisher := events.Fanout(hub)
	if cfg.Kafka.Enabled {
		origin := uuid.NewString()
		producer := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Workers)
		defer producer.Close()
		publisher = events.WithOrigin(origin, events.Fanout(hub, producer))

		// events written by other blog instances reach local subscribers through the topic
		relay := events.NewKafkaRelay(cfg.Kafka.Brokers, cfg.Kafka.Topic, origin, hub)
		defer relay.Close()
		go relay.Run(ctx)
		logrus.WithField("topic", cfg.Kafka.Topic).Info("Publishing blog events to Kafka")
	}

	deps := &blogDeps{store: repository.New(db), events: publisher}
	subs := &subscriptionHandler{
		hub:            hub,
		resolver:       resolver,
		allowedOrigins: cfg.Service.AllowedOrigins,
		initTimeout:    10 * time.Second,
	}
	router := setupRouter(cfg, deps, subs, verifier, resolver, metrics.NewHTTPMetrics(cfg.Service.Name))

	logrus.Infof("Blog service starting on %s", cfg.Service.ListenAddr())
	if err := utils.RunHTTPServer(ctx, cfg.Service.ListenAddr(), router, cfg.Service.ShutdownTimeout); err != nil {
		log.Fatal("Failed to start blog service:", err)
	}
}

func setupRouter(cfg *config.Config, d *blogDeps, subs *subscriptionHandler, verifier middleware.AccessVerifier, resolver middleware.TenantResolver, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(cfg.Service.Name),
		middleware.CORS(cfg.Service.AllowedOrigins),
		httpMetrics.Middleware(),
	)
	subs.observer = httpMetrics

	authMiddleware := middleware.NewAuthMiddleware(verifier)
	requireTenant := middleware.RequireTenant(resolver, httpMetrics)

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Blog service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	blog := router.Group("/api/blog")
	blog.GET("/ping", func(c *gin.Context) {
		utils.OKResponse(c, "pong", gin.H{"service": cfg.Service.Name})
	})
	// the websocket resolves its tenant from the connection params
	blog.GET("/comments/subscribe", subs.serve)

	scoped := blog.Group("", requireTenant)

	articles := scoped.Group("/article")
	{
		articles.GET("/all", handleListArticles(d))
		articles.GET("/:id", authMiddleware.OptionalAuth(), handleGetArticle(d))
		articles.GET("/myArticles", authMiddleware.RequireAuth(), handleMyArticles(d))
		articles.POST("/create", authMiddleware.RequireAuth(), handleCreateArticle(d))
		articles.POST("/publish", authMiddleware.RequireAuth(), handlePublishArticle(d))
		articles.PATCH("/:id", authMiddleware.RequireAuth(), handleUpdateArticle(d))
		articles.DELETE("/remove", authMiddleware.RequireAuth(), handleRemoveArticle(d))
	}

	comments := scoped.Group("/comments")
	{
		comments.GET("/article/:articleId", authMiddleware.OptionalAuth(), handleArticleComments(d))
		comments.POST("", authMiddleware.RequireAuth(), handleCreateComment(d))
		comments.PATCH("/:id", authMiddleware.RequireAuth(), handleUpdateComment(d))
		comments.DELETE("/:id", authMiddleware.RequireAuth(), handleDeleteComment(d))
		comments.POST("/:id/rate", authMiddleware.RequireAuth(), handleRateComment(d))
	}

	return router
}
