package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"perparb/internal/application/port"
	appservice "perparb/internal/application/service"
	"perparb/internal/application/usecase/monitor"
	"perparb/internal/domain/model"
	domainsvc "perparb/internal/domain/service"
	"perparb/internal/infrastructure/config"
	"perparb/internal/infrastructure/exchange/hyperliquid"
	"perparb/internal/infrastructure/exchange/paper"
	"perparb/internal/infrastructure/feed"
	"perparb/internal/infrastructure/storage"
	compositerepo "perparb/internal/infrastructure/storage/composite"
	postgresrepo "perparb/internal/infrastructure/storage/postgres"
	redisrepo "perparb/internal/infrastructure/storage/redis"
	sqliterepo "perparb/internal/infrastructure/storage/sqlite"
	"perparb/internal/infrastructure/wallet"
	"perparb/internal/interfaces/console"
)

const defaultPaperBalanceUSD = 10_000

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	strategy *model.StrategyConfig

	// 基础设施层（第一层初始化）
	repo         port.Repository
	redisClient  *redisclient.Client
	walletClient *wallet.Client
	treasury     port.Treasury

	// 输出端口
	Sink port.Sink

	// 应用业务组件（依赖基础设施）
	adapters      map[model.Exchange]port.ExchangeAdapter
	paymentSource port.FundingPaymentSource
	feeds         []port.FundingFeed
	perf          *appservice.PerformanceLogger
	balances      *appservice.BalanceManager
	keeper        *appservice.KeeperService
	syncer        *appservice.PaymentSyncer

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext。
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成。
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	strategy, err := cfg.BuildStrategyConfig()
	if err != nil {
		return nil, err
	}

	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		strategy:    strategy,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	// 按依赖顺序初始化所有组件
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initStorage(); err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if err := sc.initWallet(); err != nil {
		return fmt.Errorf("wallet initialization failed: %w", err)
	}
	if err := sc.initTreasury(); err != nil {
		return fmt.Errorf("treasury initialization failed: %w", err)
	}
	if err := sc.initAdapters(); err != nil {
		return fmt.Errorf("exchange adapter initialization failed: %w", err)
	}
	if err := sc.initFeeds(); err != nil {
		return err
	}

	sc.perf = appservice.NewPerformanceLogger(sc.paymentSource)

	var walletPort port.WalletClient
	if sc.walletClient != nil {
		walletPort = sc.walletClient
	}
	sc.balances = appservice.NewBalanceManager(walletPort, appservice.NewDefaultRebalancer(walletPort))

	sc.keeper = appservice.NewKeeperService(
		sc.strategy,
		domainsvc.NewCostCalculator(sc.strategy),
		sc.balances,
		sc.perf,
		sc.adapters,
		sc.repo,
		sc.treasury,
	)

	if sc.paymentSource != nil {
		// 启动时先回放历史，再交给周期同步
		sc.perf.SyncExternalPayments(sc.Ctx, 7)
		sc.syncer = appservice.NewPaymentSyncer(
			sc.paymentSource,
			sc.repo,
			sc.perf,
			sc.deployedCapital,
			time.Duration(sc.Config.App.PaymentSyncMin)*time.Minute,
		)
		if err := sc.syncer.Start(sc.Ctx); err != nil {
			return fmt.Errorf("payment syncer start failed: %w", err)
		}
	}

	log.Info().
		Int("feeds", len(sc.feeds)).
		Int("adapters", len(sc.adapters)).
		Msg("✓ All components initialized")
	return nil
}

// deployedCapital 实际投入本金：优先金库配置，其次纸面账户初始余额之和
func (sc *ServiceContext) deployedCapital() float64 {
	if sc.treasury != nil {
		return sc.treasury.DeployedCapital()
	}
	var total float64
	for _, ex := range sc.Config.EnabledExchanges() {
		if ec, ok := sc.Config.ExchangeConfigFor(ex); ok && ec.Paper {
			total += ec.PaperBalanceUSD
		}
	}
	return total
}

func (sc *ServiceContext) initStorage() error {
	var base port.Repository

	switch sc.Config.Storage.Driver {
	case "sqlite":
		repo, err := sqliterepo.New(sc.Config.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite repo creation failed: %w", err)
		}
		base = repo
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", sc.Config.Storage.SQLitePath).Msg("✓ SQLite initialized")

	case "postgres":
		repo, err := postgresrepo.New(sc.Config.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres repo creation failed: %w", err)
		}
		base = repo
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("✓ Postgres initialized")

	case "none":
		base = storage.NewInMemoryRepository()
		log.Info().Msg("✓ in-memory storage (driver none)")
	}

	if sc.Config.Redis.Enabled {
		mirror, err := sc.initRedis()
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		sc.repo = compositerepo.New(base, mirror)
	} else {
		sc.repo = base
	}
	return nil
}

func (sc *ServiceContext) initRedis() (*redisrepo.Repo, error) {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("✓ Redis initialized")
	return redisrepo.New(rdb, "perparb", 0, "", ""), nil
}

func (sc *ServiceContext) initWallet() error {
	if sc.Config.Wallet.RPCURL == "" {
		log.Info().Msg("wallet not configured, on-chain sweeps disabled")
		return nil
	}

	wc, err := wallet.New(sc.Config)
	if err != nil {
		return err
	}
	sc.walletClient = wc
	sc.closerChain = append(sc.closerChain, func() error {
		wc.Close()
		return nil
	})
	return nil
}

func (sc *ServiceContext) initTreasury() error {
	if !sc.Config.Treasury.Enabled {
		return nil
	}
	tr, err := wallet.NewLedgerTreasury(sc.Config.Treasury.Address, sc.Config.Treasury.DeployedCapitalUSD)
	if err != nil {
		return err
	}
	sc.treasury = tr
	log.Info().
		Str("address", sc.Config.Treasury.Address).
		Float64("capital_usd", sc.Config.Treasury.DeployedCapitalUSD).
		Msg("✓ treasury configured")
	return nil
}

func (sc *ServiceContext) initAdapters() error {
	sc.adapters = make(map[model.Exchange]port.ExchangeAdapter)

	for _, ex := range sc.Config.EnabledExchanges() {
		ec, _ := sc.Config.ExchangeConfigFor(ex)

		if ec.Paper {
			seed := ec.PaperBalanceUSD
			if seed <= 0 {
				seed = defaultPaperBalanceUSD
			}
			sc.adapters[ex] = paper.New(ex, seed)
			continue
		}

		switch ex {
		case model.ExchangeHyperliquid:
			if sc.walletClient == nil {
				return fmt.Errorf("hyperliquid live mode needs a configured wallet")
			}
			client := hyperliquid.NewClient(ec.RestURL, sc.walletClient.Address())
			sc.adapters[ex] = client
			sc.paymentSource = client
			log.Info().Str("exchange", string(ex)).Msg("✓ live adapter initialized")
		default:
			return fmt.Errorf("live trading adapter not implemented for %s, set exchange.%s.paper = true",
				ex, string(ex))
		}
	}

	if len(sc.adapters) == 0 {
		return ErrNoAdapters
	}
	return nil
}

func (sc *ServiceContext) initFeeds() error {
	symbols := sc.Config.Symbols.List

	for _, ex := range sc.Config.EnabledExchanges() {
		ec, _ := sc.Config.ExchangeConfigFor(ex)
		if ec.WsURL == "" {
			log.Warn().Str("exchange", string(ex)).Msg("no ws_url, feed skipped")
			continue
		}

		switch ex {
		case model.ExchangeHyperliquid:
			sc.feeds = append(sc.feeds, feed.NewHyperliquidFeed(ec.WsURL, symbols))
		case model.ExchangeAster:
			sc.feeds = append(sc.feeds, feed.NewAsterFeed(ec.WsURL, symbols))
		case model.ExchangeLighter:
			sc.feeds = append(sc.feeds, feed.NewLighterFeed(ec.WsURL, symbols))
		}
	}

	if len(sc.feeds) == 0 {
		return ErrNoFeedsEnabled
	}
	return nil
}

// BuildMonitorServiceDeps 构建主循环所需的全部依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Feeds:           sc.feeds,
		Symbols:         sc.Config.Symbols.List,
		CycleEverySec:   sc.Config.App.CycleEverySec,
		PrintEveryMin:   sc.Config.App.PrintEveryMin,
		SpreadThreshold: sc.strategy.MinSpread.Decimal(),
		Keeper:          sc.keeper,
		Perf:            sc.perf,
		Sink:            sc.Sink,
		Repo:            sc.repo,
	}
}

// Keeper 决策服务，诊断用
func (sc *ServiceContext) Keeper() *appservice.KeeperService { return sc.keeper }

// Perf 绩效记录器
func (sc *ServiceContext) Perf() *appservice.PerformanceLogger { return sc.perf }

// Close 按初始化的相反顺序释放所有资源
func (sc *ServiceContext) Close() error {
	for _, f := range sc.feeds {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Msg("error closing feed")
		}
	}
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	return nil
}
