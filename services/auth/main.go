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
	"github.com/pavitra93/go-multi-tenant-blog/shared/contracts"
	"github.com/pavitra93/go-multi-tenant-blog/shared/metrics"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/rpc"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tokens"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

func main() {
	cfg, err := config.Load("auth")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	cfg.Service.ConfigureLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The database is only read to verify tenant schemas
	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	redisClient, err := utils.InitRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	issuer, err := tokens.NewIssuer(cfg.JWT, cfg.Service.ClientURI)
	if err != nil {
		log.Fatal("Failed to initialize token issuer:", err)
	}

	rpcClient := rpc.NewClient(rpc.NewRedisTransport(redisClient), cfg.Redis.RPCTimeout, rpc.WithServiceOf(contracts.ServiceOf))
	defer rpcClient.Close()

	resolver := tenancy.NewResolver(
		tenancy.NewGormCatalog(db),
		tenancy.NewRedisExistenceCache(redisClient, cfg.Service.TenantCacheTTL),
	)

	deps := &authDeps{
		rpc:       rpcClient,
		issuer:    issuer,
		blacklist: redisBlacklist{},
		jwt:       cfg.JWT,
		secure:    cfg.Service.IsProduction(),
		now:       time.Now,
	}
	router := setupRouter(cfg, deps, resolver, metrics.NewHTTPMetrics(cfg.Service.Name))

	logrus.Infof("Auth service starting on %s", cfg.Service.ListenAddr())
	if err := utils.RunHTTPServer(ctx, cfg.Service.ListenAddr(), router, cfg.Service.ShutdownTimeout); err != nil {
		log.Fatal("Failed to start auth service:", err)
	}
}

func setupRouter(cfg *config.Config, d *authDeps, resolver middleware.TenantResolver, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(cfg.Service.Name),
		middleware.CORS(cfg.Service.AllowedOrigins),
		httpMetrics.Middleware(),
	)

	authMiddleware := middleware.NewAuthMiddleware(d.issuer.Verifier())
	requireTenant := middleware.RequireTenant(resolver, httpMetrics)

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Auth service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())
	router.GET("/.well-known/jwks.json", handleJWKS(d))

	auth := router.Group("/api/auth")
	{
		auth.GET("/ping", handlePing(d, cfg.Service.Name))
		auth.GET("/.well-known/jwks.json", handleJWKS(d))
		auth.POST("/tenantLogin", handleTenantLogin(d))
		auth.POST("/initTenant", requireTenant, handleInitTenant(d))

		auth.POST("/signup", requireTenant, handleSignup(d))
		auth.POST("/login", requireTenant, handleLogin(d))
		auth.POST("/refresh-access", requireTenant, handleRefreshAccess(d))
		auth.POST("/logout", requireTenant, handleLogout(d))
		auth.GET("/me", requireTenant, authMiddleware.RequireAuth(), handleMe(d))
		auth.POST("/me/image", requireTenant, authMiddleware.RequireAuth(), handleAttachImage(d))
	}

	return router
}
