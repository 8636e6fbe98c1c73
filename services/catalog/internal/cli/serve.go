package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stocktake/internal/ratelimit"
	"stocktake/internal/util"
	"stocktake/pkg/cache"
	"stocktake/pkg/storage"
	"stocktake/pkg/store"
	"stocktake/services/catalog/internal/app"
	"stocktake/services/catalog/internal/config"
	"stocktake/services/catalog/internal/server"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand runs the HTTP API until SIGINT or SIGTERM.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolvePath(opts.ConfigPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			util.InitLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			return svc.Run(ctx)
		},
	}
}

type service struct {
	httpServer *http.Server
	store      store.Store
	redis      *redis.Client
}

func newService(ctx context.Context, cfg config.FileConfig) (*service, error) {
	svc := &service{}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	st, err := store.Open(cfg.DatabaseURL, store.WithPool(cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime()))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	svc.store = st

	var listCache *cache.ListCache
	if cfg.RedisAddr != "" {
		svc.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := svc.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		listCache, err = cache.NewListCache(svc.redis, "stocktake:catalog", cfg.ListCacheTTL())
		if err != nil {
			return nil, fmt.Errorf("init list cache: %w", err)
		}
	}

	var limiter ratelimit.Limiter
	if n := cfg.WriteRateLimitPerMinute; n > 0 {
		if svc.redis != nil {
			limiter, err = ratelimit.NewRedisFixedWindowLimiter(svc.redis, "stocktake:ratelimit", n, time.Minute)
		} else {
			limiter, err = ratelimit.NewLocalLimiter(n, time.Minute)
		}
		if err != nil {
			return nil, fmt.Errorf("init write rate limiter: %w", err)
		}
	}

	var objects storage.ObjectStore
	if cfg.MinioEnabled() {
		objects, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init snapshot storage: %w", err)
		}
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}

	appCore, err := app.New(app.Config{
		Store:   st,
		Cache:   listCache,
		Objects: objects,
	})
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	httpServer, err := server.New(server.Config{
		App:            appCore,
		WriteLimiter:   limiter,
		TrustedProxies: trusted,
		IndexPath:      cfg.IndexPath,
		RequestTimeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("init server: %w", err)
	}

	svc.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ok = true
	return svc, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("catalog server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		slog.Info("catalog server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *service) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
