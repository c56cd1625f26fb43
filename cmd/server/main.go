package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/boardroom"
	"github.com/pegdao/policy-engine/internal/config"
	"github.com/pegdao/policy-engine/internal/fund"
	"github.com/pegdao/policy-engine/internal/guard"
	"github.com/pegdao/policy-engine/internal/metrics"
	"github.com/pegdao/policy-engine/internal/oracle"
	"github.com/pegdao/policy-engine/internal/scheduler"
	"github.com/pegdao/policy-engine/internal/service"
	"github.com/pegdao/policy-engine/internal/store"
	"github.com/pegdao/policy-engine/internal/token"
	"github.com/pegdao/policy-engine/internal/treasury"
)

// Ledger identities for the engine's internal accounts.
const (
	treasuryAccount  = "treasury"
	boardroomAccount = "boardroom"
	fundAccount      = "fund"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.PostgresURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.PostgresURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Database.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Database.RedisURL)
			if err != nil {
				slog.Error("invalid redis URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.TTL())
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("postgres_url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Token ledgers ---
	// The treasury holds minting authority on all three until migration.
	cash := token.New(cfg.Engine.PeggedSymbol, treasuryAccount)
	bond := token.New(cfg.Engine.BondSymbol, treasuryAccount)
	share := token.New(cfg.Engine.ShareSymbol, treasuryAccount)

	initialSupply, err := decimal.NewFromString(cfg.Engine.InitialSupply)
	if err != nil || initialSupply.IsNegative() {
		slog.Error("engine.initial_supply invalid", "value", cfg.Engine.InitialSupply)
		os.Exit(1)
	}
	if initialSupply.IsPositive() {
		if err := cash.Mint(treasuryAccount, cfg.Engine.SeedAccount, initialSupply); err != nil {
			slog.Error("seed supply failed", "err", err)
			os.Exit(1)
		}
		if err := share.Mint(treasuryAccount, cfg.Engine.SeedAccount, initialSupply); err != nil {
			slog.Error("seed shares failed", "err", err)
			os.Exit(1)
		}
	}

	// --- Oracle ---
	startPrice, err := decimal.NewFromString(cfg.Engine.OracleStartUSD)
	if err != nil {
		slog.Error("engine.oracle_start_usd invalid", "value", cfg.Engine.OracleStartUSD)
		os.Exit(1)
	}
	orc := oracle.NewSim(cfg.Engine.PeggedSymbol, startPrice, cfg.Period())

	// --- Policy parameters ---
	variant := treasury.VariantSimple
	if cfg.Engine.Variant == "extended" {
		variant = treasury.VariantExtended
	}
	params, err := buildParams(variant, cfg)
	if err != nil {
		slog.Error("policy config invalid", "err", err)
		os.Exit(1)
	}

	// --- Engine wiring ---
	adm := guard.New()
	block := func() uint64 { return uint64(time.Now().Unix()) }

	brd, err := boardroom.New(boardroom.Config{
		Account:              boardroomAccount,
		Operator:             treasuryAccount,
		WithdrawLockupEpochs: cfg.Boardroom.WithdrawLockupEpochs,
		RewardLockupEpochs:   cfg.Boardroom.RewardLockupEpochs,
	}, share, cash, adm, block)
	if err != nil {
		slog.Error("boardroom init failed", "err", err)
		os.Exit(1)
	}

	escrow := fund.NewEscrow()

	tre, err := treasury.New(treasury.Config{
		Account:          treasuryAccount,
		Operator:         cfg.Engine.Operator,
		FundAccount:      fundAccount,
		BoardroomAccount: boardroomAccount,
		Period:           cfg.Period(),
		Block:            block,
	}, params, cash, bond, share, orc, brd, escrow, adm)
	if err != nil {
		slog.Error("treasury init failed", "err", err)
		os.Exit(1)
	}
	brd.SetEpochSource(tre.Epoch)

	if err := tre.Initialize(cfg.Engine.Operator, cfg.Start()); err != nil {
		slog.Error("treasury initialize failed", "err", err)
		os.Exit(1)
	}
	slog.Info("engine initialized",
		"variant", cfg.Engine.Variant,
		"period", cfg.Engine.EpochPeriod,
		"start", cfg.Start().Format(time.RFC3339),
	)

	// --- WebSocket hub ---
	wsHub := service.NewWSHub()
	go wsHub.Run()

	// --- Engine service ---
	svc := service.NewService(tre, brd, st, wsHub)

	// --- Epoch scheduler ---
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if cfg.Engine.AutoAllocate {
		sched := scheduler.New(rootCtx, func(ctx context.Context) error {
			_, err := svc.RunAllocation(ctx, cfg.Engine.Operator)
			return err
		})
		if err := sched.Register(cfg.Period()); err != nil {
			slog.Error("scheduler register failed", "err", err)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"policy-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("policy-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down policy-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("policy-engine stopped")
}

// buildParams starts from the variant defaults and overlays any policy
// values set in the config file.
func buildParams(variant treasury.Variant, cfg *config.Config) (treasury.Params, error) {
	p := treasury.DefaultParams(variant)

	override := func(dst *decimal.Decimal, raw, name string) error {
		if raw == "" {
			return nil
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("policy.%s: %w", name, err)
		}
		*dst = v
		return nil
	}

	if err := override(&p.PriceCeiling, cfg.Policy.PriceCeiling, "price_ceiling"); err != nil {
		return p, err
	}
	if err := override(&p.BondDepletionFloorPercent, cfg.Policy.BondDepletionFloorPct, "bond_depletion_floor_pct"); err != nil {
		return p, err
	}
	if err := override(&p.MaxSupplyExpansionPercent, cfg.Policy.MaxExpansionPct, "max_expansion_pct"); err != nil {
		return p, err
	}
	if err := override(&p.FundAllocationRate, cfg.Policy.FundAllocationRate, "fund_allocation_rate"); err != nil {
		return p, err
	}
	if variant == treasury.VariantExtended {
		if err := override(&p.MaxSupplyContractionPercent, cfg.Policy.MaxContractionPct, "max_contraction_pct"); err != nil {
			return p, err
		}
		if err := override(&p.MaxDebtRatioPercent, cfg.Policy.MaxDebtRatioPct, "max_debt_ratio_pct"); err != nil {
			return p, err
		}
		if err := override(&p.SeigniorageExpansionFloorPercent, cfg.Policy.SeigniorageFloorPct, "seigniorage_floor_pct"); err != nil {
			return p, err
		}
		if err := override(&p.BootstrapSupplyExpansionPercent, cfg.Policy.BootstrapExpansionPct, "bootstrap_expansion_pct"); err != nil {
			return p, err
		}
		if err := override(&p.LiquidityIncentivePercent, cfg.Policy.LiquidityIncentivePct, "liquidity_incentive_pct"); err != nil {
			return p, err
		}
		if cfg.Policy.BootstrapEpochs > 0 {
			p.BootstrapEpochs = cfg.Policy.BootstrapEpochs
		}
		if cfg.Policy.LiquidityIncentiveEpochs > 0 {
			p.LiquidityIncentiveEpochs = cfg.Policy.LiquidityIncentiveEpochs
		}
		if len(cfg.Policy.LiquidityRecipients) > 0 {
			p.LiquidityRecipients = append([]string(nil), cfg.Policy.LiquidityRecipients...)
		}
	}
	return p, nil
}
