package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shutterdesk.app/internal/auth"
	"shutterdesk.app/internal/config"
	"shutterdesk.app/internal/httpapi"
	"shutterdesk.app/internal/migrate"
	"shutterdesk.app/internal/obs"
	"shutterdesk.app/internal/schema"
	"shutterdesk.app/internal/store/pg"
)

var version = "0.3.0"

// seedDev gives the in-memory store one admin account so local runs can
// exercise the role endpoints immediately.
func seedDev(ctx context.Context, sessions *auth.Service, resolver *auth.Resolver, roles auth.RoleStore) error {
	password := os.Getenv("SDESK_DEV_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}
	session, err := sessions.Register(ctx, "0900000000", password, auth.Profile{FullName: "Dev Admin"})
	if err != nil {
		return err
	}
	role := &auth.Role{Name: "admin", Description: "Full administrative access"}
	if err := roles.CreateRole(ctx, role); err != nil {
		return err
	}
	keys := make([]string, len(auth.BuiltinPermissions))
	for i, p := range auth.BuiltinPermissions {
		keys[i] = p.Key
	}
	if err := roles.SetRolePermissions(ctx, role.ID, keys); err != nil {
		return err
	}
	if err := resolver.Assign(ctx, session.UserID, role.ID); err != nil {
		return err
	}
	obs.Log("info", "seeded dev admin", map[string]any{"phone": "0900000000"})
	return nil
}

func main() {
	// Local overrides from .env, if present. Real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db       *sql.DB
		identity auth.IdentityStore
		roles    auth.RoleStore
	)
	if cfg.Postgres.DSN != "" {
		db, err = sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

		if cfg.Dev {
			runner := migrate.NewRunner(db, schema.Files)
			if err := runner.Up(ctx); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			if err := runner.Seed(ctx); err != nil {
				log.Fatalf("seed: %v", err)
			}
		}
		identity = pg.NewIdentityStore(db)
		roles = pg.NewRoleStore(db)
	} else {
		if !cfg.Dev {
			log.Fatal("SDESK_DB_DSN is required outside dev mode")
		}
		obs.Log("warn", "no database configured, using in-memory store", nil)
		mem := auth.NewMemStore()
		identity = mem
		roles = mem
	}

	if err := roles.EnsurePermissions(ctx, auth.BuiltinPermissions); err != nil {
		log.Fatalf("ensure permissions: %v", err)
	}

	hasher := auth.NewHasher(cfg.Auth.HashCost)
	issuer, err := auth.NewIssuer(identity, []byte(cfg.Auth.Secret), cfg.Auth.Issuer,
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	sessions, err := auth.NewService(identity, hasher, issuer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	var resolverOpts []auth.ResolverOption
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		cache := auth.NewRedisPermissionCache(rdb, "sdesk:perms")
		resolverOpts = append(resolverOpts, auth.WithPermissionCache(cache, cfg.Redis.CacheTTL))
	}
	resolver, err := auth.NewResolver(roles, resolverOpts...)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	guard, err := auth.NewGuard(issuer, sessions, resolver)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}

	if cfg.Dev && cfg.Postgres.DSN == "" {
		if err := seedDev(ctx, sessions, resolver, roles); err != nil {
			log.Fatalf("dev seed: %v", err)
		}
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, sessions, guard, resolver, roles, httpapi.Options{
		Version:      version,
		Dev:          cfg.Dev,
		CookieTokens: cfg.HTTP.CookieTokens,
		TrustProxy:   cfg.HTTP.TrustProxy,
		RateBurst:    cfg.HTTP.RateBurst,
		RatePerSec:   cfg.HTTP.RatePerSec,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		StoreTimeout: cfg.HTTP.StoreCallTimeout,
		AccessTTL:    issuer.AccessTTL(),
		RefreshTTL:   issuer.RefreshTTL(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	obs.Log("info", "starting shutterdesk-auth", map[string]any{
		"version": version,
		"addr":    srv.Addr,
		"dev":     cfg.Dev,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Log("info", "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGraceWait)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	obs.Log("info", "stopped", nil)
}
