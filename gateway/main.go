package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/contracts"
	"github.com/pavitra93/go-multi-tenant-blog/shared/metrics"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/rpc"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

const upstreamTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load("gateway")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	cfg.Service.ConfigureLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := newServiceClients(cfg.Upstreams)
	if err != nil {
		log.Fatal("Failed to initialize service clients:", err)
	}

	// without Redis the RPC services are reported as unavailable
	var pinger rpcPinger
	redisClient, err := utils.InitRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis, RPC health checks disabled: %v", err)
	} else {
		rpcClient := rpc.NewClient(rpc.NewRedisTransport(redisClient), cfg.Redis.RPCTimeout, rpc.WithServiceOf(contracts.ServiceOf))
		defer rpcClient.Close()
		pinger = rpcClient
	}
	defer utils.CloseRedis()

	router := setupRouter(cfg, clients, pinger, metrics.NewHTTPMetrics(cfg.Service.Name))

	logrus.Infof("API Gateway starting on %s", cfg.Service.ListenAddr())
	if err := utils.RunHTTPServer(ctx, cfg.Service.ListenAddr(), router, cfg.Service.ShutdownTimeout); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}

func newServiceClients(cfg config.UpstreamConfig) (*ServiceClients, error) {
	auth, err := NewServiceClient("auth", cfg.AuthURL, upstreamTimeout)
	if err != nil {
		return nil, err
	}
	blog, err := NewServiceClient("blog", cfg.BlogURL, upstreamTimeout)
	if err != nil {
		return nil, err
	}
	files, err := NewServiceClient("files", cfg.FilesURL, upstreamTimeout)
	if err != nil {
		return nil, err
	}
	return &ServiceClients{Auth: auth, Blog: blog, Files: files}, nil
}

func setupRouter(cfg *config.Config, clients *ServiceClients, pinger rpcPinger, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(cfg.Service.Name),
		middleware.CORS(cfg.Service.AllowedOrigins),
		httpMetrics.Middleware(),
	)

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")
	api.GET("/ping", func(c *gin.Context) {
		utils.OKResponse(c, "pong", gin.H{"service": cfg.Service.Name})
	})
	api.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := clients.GetServiceStatus(ctx, pinger)
		healthy := pinger != nil
		for _, s := range status {
			healthy = healthy && s.Healthy
		}
		if !healthy {
			utils.ServiceUnavailableResponse(c, "Some services are unavailable", status)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "All services are healthy", status)
	})

	api.Any("/auth/*path", clients.Auth.ProxyRequest)
	api.Any("/blog/*path", clients.Blog.ProxyRequest)
	api.Any("/files/*path", clients.Files.ProxyRequest)

	return router
}
