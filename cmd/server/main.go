package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/rental-markup/internal/cache"
	"github.com/iliyamo/rental-markup/internal/config" // Internal config loader
	"github.com/iliyamo/rental-markup/internal/database"
	"github.com/iliyamo/rental-markup/internal/handler"
	"github.com/iliyamo/rental-markup/internal/logger"
	"github.com/iliyamo/rental-markup/internal/markup"
	"github.com/iliyamo/rental-markup/internal/middleware"
	"github.com/iliyamo/rental-markup/internal/model"
	"github.com/iliyamo/rental-markup/internal/queue"
	"github.com/iliyamo/rental-markup/internal/repository"
	"github.com/iliyamo/rental-markup/internal/router" // Internal router setup
	queue_publisher "github.com/iliyamo/rental-markup/internal/service"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load() // Load environment config
	mcfg := config.LoadMarkupConfig()

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"env": cfg.Env, "service": "rental-markup"},
	}); err != nil {
		panic(err)
	}
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: MySQL in every real deployment, memory for demos and local runs.
	var (
		db       *sql.DB
		store    repository.MarkupStore
		auth     markup.Authorizer
		listings handler.ListingSource
		pinger   handler.Pinger
	)
	switch cfg.Store {
	case config.StoreMySQL:
		var err error
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		if cfg.DBMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				logger.Fatal("migrate database", zap.Error(err))
			}
		}
		store = repository.NewMarkupRepo(db)
		auth = repository.NewUserRepo(db)
		listings = repository.NewListingRepo(db)
		pinger = db
	case config.StoreMemory:
		users := repository.NewMemoryUserRepo()
		items := repository.NewMemoryListingRepo()
		if cfg.Seed {
			seed(users, items)
		}
		store = repository.NewMemoryMarkupRepo()
		auth = users
		listings = items
	default:
		logger.Fatal("unknown APP_STORE", zap.String("store", cfg.Store))
	}

	// Redis backs link snapshots, the landing cache and the rate limiter.
	// Without it links live in an in-process LRU and the other two are off.
	rdb := config.NewRedisClient()
	var tokens cache.TokenCache
	if rdb != nil {
		defer rdb.Close()
		tokens = cache.NewRedisTokenCache(rdb)
	} else {
		logger.Warn("redis unavailable; using in-process link cache")
		lru, err := cache.NewLRUTokenCache(mcfg.LRUSize)
		if err != nil {
			logger.Fatal("build link cache", zap.Error(err))
		}
		tokens = lru
	}

	var pub markup.Publisher
	if cfg.AMQPURL != "" {
		pub = queue_publisher.NewAMQPPublisher(cfg.AMQPURL)
	}

	links := markup.DefaultLinkBuilder(cfg.BaseURL)
	for t, p := range mcfg.LinkPrefixes {
		links.Prefixes[t] = p
	}
	manager := markup.NewManager(store, tokens, auth, markup.Options{
		Links:        links,
		LinkTTL:      mcfg.LinkTTL,
		ApplyRetries: mcfg.ApplyRetries,
		Publisher:    pub,
		Logger:       logger.Default().Named("markup"),
	})

	e := newServer(cfg, rdb, manager, listings, pinger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port // Address string with port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.Store))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.AMQPURL != "" {
		g.Go(func() error {
			if err := queue.StartMarkupConsumer(gctx, cfg.AMQPURL, "logs"); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error(err)
	}
}

// newServer builds the echo instance with global middleware and routes.
func newServer(cfg config.Config, rdb *redis.Client, m *markup.Manager, listings handler.ListingSource, db handler.Pinger) *echo.Echo {
	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(middleware.Recover(), middleware.RequestLogger())

	rl := config.LoadRateLimitConfig()
	limit := middleware.NewTokenBucket(rl, rdb)
	landingLimit := middleware.NewTokenBucket(rl.Landing(), rdb)
	landingCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e, handler.Ready(db))
	router.RegisterMarkup(e, handler.NewMarkupHandler(m, listings), cfg.JWTSecret, limit)
	var prefixes []string
	for _, t := range model.MarkableTypes {
		prefixes = append(prefixes, m.Links().Prefixes[t])
	}
	router.RegisterLanding(e, handler.NewLandingHandler(m, listings), prefixes, cfg.JWTSecret, landingLimit, landingCache)
	return e
}

// seed loads a demo host, guest and one listing of each type into the
// memory store.
func seed(users *repository.MemoryUserRepo, items *repository.MemoryListingRepo) {
	now := time.Now().UTC()
	users.Put(model.User{ID: 1, Email: "host@example.com", Role: model.RoleHost, IsActive: true, CreatedAt: now, UpdatedAt: now})
	users.Put(model.User{ID: 2, Email: "guest@example.com", Role: model.RoleGuest, IsActive: true, CreatedAt: now, UpdatedAt: now})
	users.Put(model.User{ID: 3, Email: "admin@example.com", Role: model.RoleAdmin, IsActive: true, CreatedAt: now, UpdatedAt: now})
	items.Put(model.Listing{Type: model.MarkableProperty, ID: 1, Title: "Seaside villa", Price: decimal.RequireFromString("1000")})
	items.Put(model.Listing{Type: model.MarkableCar, ID: 1, Title: "Compact car", Price: decimal.RequireFromString("45")})
	items.Put(model.Listing{Type: model.MarkableService, ID: 1, Title: "Airport transfer", Price: decimal.RequireFromString("30")})
	items.Put(model.Listing{Type: model.MarkableFood, ID: 1, Title: "Breakfast basket", Price: decimal.RequireFromString("12.50")})
}
