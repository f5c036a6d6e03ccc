package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	adminhandler "authcore/internal/admin/handler"
	"authcore/internal/audit"
	auditrepo "authcore/internal/audit/repository"
	"authcore/internal/cache"
	"authcore/internal/config"
	"authcore/internal/csrf"
	"authcore/internal/db"
	healthhandler "authcore/internal/health/handler"
	identityhandler "authcore/internal/identity/handler"
	identityservice "authcore/internal/identity/service"
	"authcore/internal/platform/rbac"
	"authcore/internal/ratelimit"
	"authcore/internal/security"
	"authcore/internal/server"
	"authcore/internal/session"
	sessionrepo "authcore/internal/session/repository"
	subjectrepo "authcore/internal/subject/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	sharedCache := cache.NewRedis(rdb)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sharedCache.Ping(ctx); err != nil {
			log.Fatalf("redis: %v", err)
		}
	}

	deps := server.Deps{
		Limiter:           ratelimit.NewLimiter(sharedCache),
		SessionCookieName: cfg.SessionCookieName,
		IPSecret:          cfg.IPHashSecret,
		LoginRules: []ratelimit.Rule{
			{Kind: ratelimit.SubjectIP, Action: "login", Limit: cfg.LoginIPLimit, Window: cfg.LoginIPWindowDuration()},
			{Kind: ratelimit.SubjectAccount, Action: "login", Limit: cfg.LoginAccountLimit, Window: cfg.LoginAccountWindowDuration()},
		},
		CSRF: csrf.NewGuard(csrf.Policy{
			CookieName:        cfg.CSRFCookieName,
			SessionCookieName: cfg.SessionCookieName,
			Domain:            cfg.CookieDomain,
			Secure:            cfg.CookieSecure,
		}),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	sessionStore := sessionrepo.NewPostgresStore(conn)
	auditLog := auditrepo.NewPostgresRepository(conn)
	subjects := subjectrepo.NewPostgresRepository(conn)

	sessions := session.NewManager(sharedCache, sessionStore, cfg.SessionLifetime(), cfg.IPHashSecret)
	sink := audit.NewLogger(auditLog)
	hasher := security.NewPasswordHasher(cfg.AuthPepper, security.Argon2Params{
		MemoryKiB:   uint32(cfg.Argon2MemoryKiB),
		Iterations:  uint32(cfg.Argon2Iterations),
		Parallelism: uint8(cfg.Argon2Parallelism),
	})
	authSvc := identityservice.NewAuthService(subjects, sessions, hasher, sink, cfg.IPHashSecret)

	deps.Sessions = sessions
	deps.Audit = sink
	deps.CSRF.SetAuditSink(sink, cfg.IPHashSecret)
	deps.Authz = rbac.NewAuthorizer(subjects)
	deps.Identity = identityhandler.NewHTTP(authSvc, sessions, identityhandler.CookiePolicy{
		Name:   cfg.SessionCookieName,
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
		TTL:    cfg.SessionLifetime(),
	})
	deps.Admin = adminhandler.NewHTTP(subjects, sessions, auditLog, sink, cfg.IPHashSecret)
	deps.Health = healthhandler.NewHTTP(conn, pingAdapter{sharedCache})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.NewHandler(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Expired durable session records accrue until pruned; cache entries
	// self-expire.
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	go pruneLoop(pruneCtx, sessions)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	stopPrune()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

func pruneLoop(ctx context.Context, sessions *session.Manager) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PruneExpired(ctx)
			if err != nil {
				log.Printf("session prune: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("session prune: removed %d expired records", n)
			}
		}
	}
}

// pingAdapter lets the cache satisfy the health handler's Pinger.
type pingAdapter struct{ c *cache.Redis }

func (p pingAdapter) PingContext(ctx context.Context) error { return p.c.Ping(ctx) }
