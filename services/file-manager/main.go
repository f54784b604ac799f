package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/metrics"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/storage"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tokens"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

func main() {
	cfg, err := config.Load("file-manager")
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

	redisClient, err := utils.InitRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis, tenant cache disabled: %v", err)
	}
	defer utils.CloseRedis()

	verifier, err := tokens.NewVerifierFromConfig(cfg.JWT, cfg.Service.ClientURI)
	if err != nil {
		log.Fatal("Failed to initialize token verifier:", err)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}
	logrus.WithField("driver", cfg.Storage.Driver).Info("File storage ready")

	resolver := tenancy.NewResolver(
		tenancy.NewGormCatalog(db),
		tenancy.NewRedisExistenceCache(redisClient, cfg.Service.TenantCacheTTL),
	)

	deps := &fileDeps{store: store, maxSize: cfg.Storage.MaxUploadSize, now: time.Now}
	router := setupRouter(cfg, deps, verifier, resolver, metrics.NewHTTPMetrics(cfg.Service.Name))

	logrus.Infof("File manager starting on %s", cfg.Service.ListenAddr())
	if err := utils.RunHTTPServer(ctx, cfg.Service.ListenAddr(), router, cfg.Service.ShutdownTimeout); err != nil {
		log.Fatal("Failed to start file manager:", err)
	}
}

func setupRouter(cfg *config.Config, d *fileDeps, verifier middleware.AccessVerifier, resolver middleware.TenantResolver, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(cfg.Service.Name),
		middleware.CORS(cfg.Service.AllowedOrigins),
		httpMetrics.Middleware(),
	)
	router.MaxMultipartMemory = d.maxSize

	authMiddleware := middleware.NewAuthMiddleware(verifier)

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "File manager is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	files := router.Group("/api/files")
	files.GET("/ping", func(c *gin.Context) {
		utils.OKResponse(c, "pong", gin.H{"service": cfg.Service.Name})
	})
	files.POST("/upload",
		middleware.RequireTenant(resolver, httpMetrics),
		authMiddleware.RequireAuth(),
		handleUpload(d),
	)

	// S3 objects are served by the bucket itself
	if local, ok := d.store.(*storage.LocalStorage); ok {
		files.StaticFS("/images", gin.Dir(local.Dir(), false))
	}

	return router
}
