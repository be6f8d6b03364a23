package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-tradesim/internal/auth"
	"lv-tradesim/internal/config"
	"lv-tradesim/internal/db"
	"lv-tradesim/internal/events"
	"lv-tradesim/internal/health"
	"lv-tradesim/internal/httpserver"
	"lv-tradesim/internal/ledger"
	"lv-tradesim/internal/markethours"
	"lv-tradesim/internal/matching"
	"lv-tradesim/internal/observability"
	"lv-tradesim/internal/orders"
	"lv-tradesim/internal/positions"
	"lv-tradesim/internal/pricefeed"
	"lv-tradesim/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func component(log zerolog.Logger, name string) zerolog.Logger {
	return observability.NewLoggerTo(os.Stdout, name, log.GetLevel())
}

func main() {
	log := observability.NewLogger("api")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = log.Level(observability.ParseLevel(cfg.LogLevel))
	ctx := context.Background()

	startedAt := time.Now()
	// closers run in reverse once the HTTP server has drained.
	var closers []func()
	var repos store.Repositories
	var pinger health.Pinger
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		closers = append(closers, pool.Close)
		if err := db.Migrate(ctx, pool, component(log, "db")); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		repos = store.NewPostgresStore(pool).Repositories()
		pinger = pool
	default:
		repos = store.NewMemoryStore().Repositories()
	}

	prices := pricefeed.NewStore()
	seed, err := pricefeed.ParseSeed(cfg.SeedPrices)
	if err != nil {
		log.Fatal().Err(err).Msg("parse SEED_PRICES")
	}
	for symbol, price := range seed {
		if err := prices.Set(symbol, price); err != nil {
			log.Fatal().Err(err).Str("symbol", symbol).Msg("seed price")
		}
	}

	limits, err := config.LoadRisk(cfg.RiskConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load risk config")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	bus := events.NewBus()
	broadcaster := events.Broadcaster(bus)
	if cfg.NATSURL != "" {
		nc, err := events.DialNATS(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect nats")
		}
		closers = append(closers, func() {
			_ = nc.Flush()
			nc.Close()
		})
		broadcaster = events.Fanout(bus, events.NewNATSBroadcaster(nc, "", component(log, "nats")))
	}

	var liquidity matching.LiquidityModel = matching.NewRandomLiquidity(cfg.LiquiditySeed)
	if cfg.LiquidityMode == "full" {
		liquidity = matching.FullLiquidity{}
	}

	gate := markethours.NewGate(nil)
	ledgerSvc := ledger.NewService(repos, prices, broadcaster, metrics, cfg.AccountStartBalance, component(log, "ledger"))
	positionSvc := positions.NewService(positions.NewManager(repos.Positions), repos.Positions, ledgerSvc, prices, broadcaster, metrics, cfg.StopOutLevel, component(log, "positions"))
	queue := orders.NewQueue()
	engine := matching.NewEngine(gate, matching.NewRiskChecker(limits), liquidity, queue, component(log, "matching"))
	orderSvc := orders.NewService(orders.Deps{
		Orders:    repos.Orders,
		Ledger:    ledgerSvc,
		Positions: positionSvc,
		Engine:    engine,
		Queue:     queue,
		Gate:      gate,
		Oracle:    prices,
		Bus:       broadcaster,
		Metrics:   metrics,
		Log:       component(log, "orders"),
	})
	if err := orderSvc.Rebuild(ctx); err != nil {
		log.Fatal().Err(err).Msg("rebuild order queue")
	}

	authSvc := auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	limiter := httpserver.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	httpLog := component(log, "http")
	router := httpserver.NewRouter(httpserver.RouterDeps{
		OrderHandler:    orders.NewHandler(orderSvc, httpLog),
		PositionHandler: positions.NewHandler(positionSvc, httpLog),
		LedgerHandler:   ledger.NewHandler(ledgerSvc, httpLog),
		PriceHandler:    pricefeed.NewHandler(prices, orderSvc, positionSvc),
		HealthHandler:   health.NewHandler(pinger, startedAt),
		AuthService:     authSvc,
		WSHandler:       httpserver.NewWSHandler(bus, authSvc, cfg.WebSocketOrigin, httpLog),
		MetricsHandler:  metrics.Handler(),
		RateLimiter:     limiter,
		InternalToken:   cfg.InternalToken,
		Origin:          cfg.WebSocketOrigin,
		Log:             httpLog,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for range t.C {
			limiter.Prune()
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("store", cfg.StoreDriver).
		Str("liquidity", cfg.LiquidityMode).
		Int("seed_prices", len(seed)).
		Msg("server listening")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("serve")
	}
	<-drained
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	log.Info().Msg("server stopped")
}
