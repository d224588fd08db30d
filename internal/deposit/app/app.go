package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"coinvault.com/internal/accountstatus"
	"coinvault.com/internal/currency"
	depositcfg "coinvault.com/internal/deposit/config"
	"coinvault.com/internal/deposit/intake"
	"coinvault.com/internal/deposit/lock"
	"coinvault.com/internal/deposit/notify"
	"coinvault.com/internal/deposit/queue"
	depositmysql "coinvault.com/internal/deposit/repo/mysql"
	"coinvault.com/internal/deposit/service"
	"coinvault.com/internal/server"
	"coinvault.com/pkg/breaker"
	"coinvault.com/pkg/config"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/metrics"
	"coinvault.com/pkg/orm"
	"coinvault.com/pkg/trace"
	"coinvault.com/pkg/xredis"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "deposit-service"
	refreshInterval = 30 * time.Second
)

// Run 启动充值服务，ctx 取消后优雅退出
func Run(ctx context.Context) error {
	cfg := &depositcfg.Cfg{}
	// 配置热更新只替换币种列表，registry 定时刷新时生效
	var entries atomic.Pointer[[]currency.Entry]
	_, err := config.LoadAndWatch(serviceName, cfg, func() {
		list := append([]currency.Entry(nil), cfg.Currencies...)
		entries.Store(&list)
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	list := append([]currency.Entry(nil), cfg.Currencies...)
	entries.Store(&list)

	logger.Init(cfg.Name, cfg.LogLevel)
	defer logger.Sync()

	if cfg.OTel.Enabled {
		shutdown, err := trace.InitTrace(ctx, trace.Config{
			Service:     cfg.Name,
			Endpoint:    cfg.OTel.Addr,
			SampleRatio: cfg.OTel.SampleRatio,
			Env:         cfg.OTel.Env,
		})
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	// ---- 存储 ----
	db, err := orm.NewMySQL(ctx, &orm.Config{
		DSN:         cfg.Db.SourceName,
		MaxIdle:     cfg.Db.MaxIdleConns,
		MaxOpen:     cfg.Db.MaxOpenConns,
		MaxLifetime: cfg.Db.ConnMaxLifetimeMinutes * 60,
		Debug:       cfg.Db.Debug,
	})
	if err != nil {
		return err
	}
	if cfg.Db.AutoMigrate {
		if err := depositmysql.AutoMigrate(db); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	store := depositmysql.New(db)

	registry, err := currency.NewRegistry(ctx, currency.StaticLoader(func() []currency.Entry {
		return *entries.Load()
	}), refreshInterval)
	if err != nil {
		return fmt.Errorf("currency policies: %w", err)
	}

	// ---- 锁 ----
	var (
		locker lock.Locker
		rdb    *redis.Client
	)
	switch cfg.Lock.Backend {
	case "redis":
		rdb, err = xredis.NewRedis(ctx, &xredis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Auth,
			DB:           cfg.Redis.Database,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Lock.Wait(), cfg.Lock.TTL())
	case "memory", "":
		locker = lock.NewMemLocker(cfg.Lock.Wait())
	default:
		return fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}

	// ---- 消息 ----
	nc, js, err := queue.Connect(cfg.Nats.URL, cfg.Name)
	if err != nil {
		return err
	}
	var broker queue.Broker
	if cfg.Nats.JetStream {
		if err := queue.EnsureStreams(ctx, js); err != nil {
			nc.Close()
			return err
		}
		broker = queue.NewJetStreamBroker(nc, js)
	} else {
		broker = queue.NewNatsBroker(nc)
	}
	defer broker.Close()

	breakers := breaker.NewManager(breaker.Rule{TripConsecutiveFailures: 5, Timeout: 10 * time.Second}, nil)
	breakers.OnStateChange(func(name string, from, to gobreaker.State) {
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		logger.Warn(ctx, "circuit breaker state changed",
			zap.String("target", name), zap.String("from", from.String()), zap.String("to", to.String()))
	})

	// ---- 业务 ----
	sender := notify.NewSender(store, notify.NewBrokerMailer(broker, breakers), cfg.Notify.MaxAttempts)
	machine := service.NewMachine(service.Deps{
		Repo:     store,
		Policies: registry,
		Locker:   locker,
		Notifier: sender,
		Exporter: service.NewExporter(store, broker),
	})
	dispatcher := service.NewDispatcher(store, registry, queue.NewPublisher(broker))
	accounts := accountstatus.NewClient(cfg.AccountStatus.BaseURL, cfg.AccountStatus.Timeout(), breakers)
	relay := notify.NewRelay(store, sender, notify.RelayConfig{
		Interval: time.Duration(cfg.Notify.IntervalMs) * time.Millisecond,
		Grace:    time.Duration(cfg.Notify.GraceMs) * time.Millisecond,
		Batch:    cfg.Notify.Batch,
		Rate:     cfg.Notify.Rate,
	})
	handler := intake.NewHandler(machine, dispatcher, accounts, 10*time.Second, cfg.Nats.Workers)

	checks := map[string]server.Check{
		"db":   func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
		"nats": natsCheck(nc),
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	httpSrv := server.NewServer(cfg.HTTP.Addr, server.NewRouter(cfg.Name, checks))

	// ---- 运行 ----
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, httpSrv) })
	g.Go(func() error { return handler.Serve(gctx, nc, cfg.Nats.QueueGroup) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		registry.StartAutoRefresh(gctx, refreshInterval, func(err error) {
			logger.Error(gctx, "currency refresh failed", zap.Error(err))
		})
		return nil
	})
	g.Go(func() error {
		metrics.ObserveDBStats(gctx, sqlDB, 5*time.Second)
		return nil
	})
	if rdb != nil {
		g.Go(func() error {
			metrics.ObserveRedisStats(gctx, rdb, 5*time.Second)
			return nil
		})
	}

	logger.Info(ctx, "deposit service started",
		zap.String("lock_backend", cfg.Lock.Backend),
		zap.Strings("escrow_currencies", registry.EscrowCurrencies()))
	err = g.Wait()
	logger.Info(context.Background(), "deposit service stopped", zap.Error(err))
	return err
}

func natsCheck(nc *nats.Conn) server.Check {
	return func(ctx context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats status %s", nc.Status())
		}
		return nil
	}
}
