package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shorty.local/internal/app/link"
	slcache "shorty.local/internal/app/link/cache"
	"shorty.local/internal/app/link/cleaner"
	"shorty.local/internal/app/link/httpapi"
	"shorty.local/internal/app/link/repo"
	"shorty.local/internal/platform/auth"
	platformcache "shorty.local/internal/platform/cache"
	"shorty.local/internal/platform/config"
	"shorty.local/internal/platform/db"
	"shorty.local/internal/platform/httpmiddleware"
	"shorty.local/internal/platform/httpserver"
	"shorty.local/internal/platform/metrics"
	"shorty.local/internal/platform/migrate"
	"shorty.local/internal/platform/ratelimit"
	"shorty.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	slog.SetDefault(slog.New(h))

	// DB
	dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dbPool, errDB := db.New(dbCtx, cfg.DBDSN)
	if errDB != nil {
		log.Fatal(errDB)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(dbCtx); err != nil {
		log.Fatal(err)
	}
	slog.Info("数据库连接成功")

	// 迁移（内嵌 SQL，幂等）
	migCtx, cancelMig := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelMig()
	migRes, errMig := migrate.Up(migCtx, dbPool)
	if errMig != nil {
		log.Fatal(errMig)
	}
	slog.Info("migrations applied", "applied", migRes.AppliedFiles, "skipped", len(migRes.SkippedFiles))

	// Redis
	redisClient, errRedis := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if errRedis != nil {
		log.Fatal(errRedis)
	}
	defer redisClient.Close()

	// 限流器
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	// 负缓存（L1 本地 + L2 Redis）
	localMisses, errLocal := slcache.NewLocalMissCache(100_000)
	if errLocal != nil {
		log.Fatal(errLocal)
	}
	misses := slcache.NewMissCache(redisClient, localMisses)
	defer misses.Close()

	// 短码布隆过滤器：预期 100 万短码，1% 误判率
	idFilter := slcache.NewIDFilter(1_000_000, 0.01)

	limits := link.Limits{
		DefaultMaxUses:    cfg.DefaultMaxUses,
		DefaultValidFor:   cfg.DefaultValidFor,
		MaxLinkLength:     cfg.MaxLinkLength,
		MaxCustomIDLength: cfg.MaxCustomIDLength,
		IDLength:          cfg.IDLength,
		IDMaxAttempts:     cfg.IDMaxAttempts,
	}
	linkStore := repo.NewLinkStore(dbPool, misses, idFilter, limits)

	// JWT（管理接口）
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}

	metrics.Init()

	var shutdown func(context.Context) error
	if cfg.TracingEnabled {
		shutdown = trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), httpmiddleware.ReqID(), httpmiddleware.AccessLog(), httpmiddleware.Metrics())

	pub := httpapi.PublicConfig{
		PublicURL:         cfg.PublicURL,
		DefaultMaxUses:    cfg.DefaultMaxUses,
		DefaultValidFor:   cfg.DefaultValidFor,
		MaxLinkLength:     cfg.MaxLinkLength,
		MaxCustomIDLength: cfg.MaxCustomIDLength,
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api/v1")
	httpapi.RegisterAPIRoutes(api, linkStore, pub, cfg.AdminPasswordHash, ts, limiter)
	httpapi.RegisterPublicRoutes(r, linkStore, pub, limiter)

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 数据库连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(dbCtx); err != nil {
			w.WriteHeader(500)
			w.Write([]byte("DB Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DB ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := &http.Server{
		Addr:              cfg.AdminAddr, // 推荐：127.0.0.1:6060
		Handler:           adminMux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 后台周期清理过期短链
	go cleaner.New(linkStore, cfg.CleanInterval).Run(stopCtx)

	errch := make(chan error, 2)

	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()

	err := <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}
