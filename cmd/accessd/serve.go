package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PaulFidika/accesskit/access"
	authgin "github.com/PaulFidika/accesskit/adapters/gin"
	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/config"
	"github.com/PaulFidika/accesskit/entitlements"
	pgentitlements "github.com/PaulFidika/accesskit/entitlements/postgres"
	"github.com/PaulFidika/accesskit/identity"
	jwtkit "github.com/PaulFidika/accesskit/jwt"
	"github.com/PaulFidika/accesskit/ratelimit"
	pglimiter "github.com/PaulFidika/accesskit/ratelimit/postgres"
	redislimiter "github.com/PaulFidika/accesskit/ratelimit/redis"
	"github.com/PaulFidika/accesskit/session"
	pgsession "github.com/PaulFidika/accesskit/session/postgres"
	"github.com/PaulFidika/accesskit/sweeper"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP entry points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	windows, closeWindows, err := windowStore(cfg, pool)
	if err != nil {
		return err
	}
	defer closeWindows()

	verifier, err := credentialVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	sessions := pgsession.New(pool, cfg.Schema)
	validator := session.NewValidator(verifier, sessions, session.Options{
		Logger:              a.log.WithField("component", "session"),
		OnStoreError:        cfg.SessionPolicy(),
		MaxFirstSightingAge: cfg.MaxFirstSightingAge,
	})
	limiter := ratelimit.New(windows, ratelimit.Options{
		Logger:          a.log.WithField("component", "ratelimit"),
		AtomicIncrement: cfg.RateLimitAtomic,
	})
	ents := pgentitlements.New(pool, cfg.Schema)
	resolver := entitlements.NewResolver(ents, entitlements.Options{
		Policy: cfg.EntitlementsPolicy(),
		Logger: a.log.WithField("component", "entitlements"),
	})
	gate := access.NewGate(validator, limiter, resolver, a.log.WithField("component", "gate"))

	overrides, err := bucketLimits(cfg)
	if err != nil {
		return err
	}

	sw := sweeper.New(windows, sessions, a.log.WithField("component", "sweeper"))
	if err := sw.Start(cfg.SweepSchedule); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sw.Stop(stopCtx)
	}()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.log))
	authgin.Register(r, authgin.Deps{
		Gate:         gate,
		Sessions:     validator,
		Entitlements: ents,
		Users:        identity.NewStore(pool, cfg.IdentitySchema),
		Limiter:      ginutil.NewBuckets(limiter, overrides),
		Ping:         pool.Ping,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", cfg.ListenAddr).Info("accessd: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.log.Info("accessd: shutting down")
	return srv.Shutdown(shutdownCtx)
}

// windowStore picks Redis when REDIS_ADDR is set, else the Postgres table.
func windowStore(cfg *config.Config, pool *pgxpool.Pool) (ratelimit.WindowStore, func(), error) {
	if cfg.RedisAddr == "" {
		return pglimiter.New(pool, cfg.Schema), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	return redislimiter.New(rdb, ""), func() { _ = rdb.Close() }, nil
}

func credentialVerifier(ctx context.Context, cfg *config.Config) (session.CredentialVerifier, error) {
	ac := cfg.Accept()
	if len(ac.HMACSecret) > 0 {
		return jwtkit.NewHMACVerifier(ac)
	}
	return jwtkit.NewJWKSVerifier(ctx, ac)
}

// bucketLimits applies the configured failure policy to every default bucket
// and layers the explicit overrides on top.
func bucketLimits(cfg *config.Config) (map[string]ratelimit.Limits, error) {
	overrides, err := cfg.BucketLimits()
	if err != nil {
		return nil, err
	}
	out := make(map[string]ratelimit.Limits, len(ginutil.DefaultLimits)+len(overrides))
	for name, l := range ginutil.DefaultLimits {
		l.OnStoreError = cfg.RateLimitPolicy()
		out[name] = l
	}
	for name, l := range overrides {
		out[name] = l
	}
	return out, nil
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"ip":       c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}
