package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/metrics"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/rpc"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

func main() {
	cfg, err := config.Load("tenant")
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

	// Redis carries the RPC bus and the tenant existence cache
	redisClient, err := utils.InitRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	directory := tenancy.NewGormDirectory(db)
	if err := directory.EnsureTable(ctx); err != nil {
		log.Fatal("Failed to prepare tenant directory:", err)
	}

	resolver := tenancy.NewResolver(
		tenancy.NewGormCatalog(db),
		tenancy.NewRedisExistenceCache(redisClient, cfg.Service.TenantCacheTTL),
	)
	httpMetrics := metrics.NewHTTPMetrics(cfg.Service.Name)

	handlers := newTenantHandlers(
		tenancy.NewBootstrapper(directory, tenancy.NewSQLProvisioner(db)),
		directory,
		cfg.Service.Name,
	)
	server := rpc.NewServer(rpc.NewRedisTransport(redisClient), resolver, httpMetrics)
	handlers.register(server)

	go func() {
		if err := server.Serve(ctx); err != nil {
			logrus.WithError(err).Error("RPC server stopped")
			stop()
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(cfg.Service.Name), httpMetrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Tenant service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	logrus.Infof("Tenant service starting on %s", cfg.Service.ListenAddr())
	if err := utils.RunHTTPServer(ctx, cfg.Service.ListenAddr(), router, cfg.Service.ShutdownTimeout); err != nil {
		log.Fatal("Failed to start tenant service:", err)
	}
}
