package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"escrowops/internal/audit/forwarder"
	audithandler "escrowops/internal/audit/handler"
	auditmetrics "escrowops/internal/audit/metrics"
	auditservice "escrowops/internal/audit/service"
	auditstore "escrowops/internal/audit/store"
	bothandler "escrowops/internal/botconfig/handler"
	botservice "escrowops/internal/botconfig/service"
	botstore "escrowops/internal/botconfig/store"
	exporthandler "escrowops/internal/export/handler"
	exportservice "escrowops/internal/export/service"
	exportsource "escrowops/internal/export/source"
	feehandler "escrowops/internal/fees/handler"
	feemetrics "escrowops/internal/fees/metrics"
	feeservice "escrowops/internal/fees/service"
	feestore "escrowops/internal/fees/store"
	gateadapters "escrowops/internal/gate/adapters"
	gatehandler "escrowops/internal/gate/handler"
	gatemetrics "escrowops/internal/gate/metrics"
	gateservice "escrowops/internal/gate/service"
	gatestore "escrowops/internal/gate/store"
	grouphandler "escrowops/internal/groups/handler"
	groupmetrics "escrowops/internal/groups/metrics"
	groupservice "escrowops/internal/groups/service"
	groupstore "escrowops/internal/groups/store"
	httpapi "escrowops/internal/http"
	jwttoken "escrowops/internal/jwt_token"
	modhandler "escrowops/internal/moderator/handler"
	modmetrics "escrowops/internal/moderator/metrics"
	modservice "escrowops/internal/moderator/service"
	modstore "escrowops/internal/moderator/store"
	"escrowops/internal/platform/config"
	"escrowops/internal/platform/kafka"
	"escrowops/internal/platform/metrics"
	"escrowops/internal/platform/postgres"
	platformredis "escrowops/internal/platform/redis"
	ratelimitmetrics "escrowops/internal/ratelimit/metrics"
	ratelimitmw "escrowops/internal/ratelimit/middleware"
	ratelimitmodels "escrowops/internal/ratelimit/models"
	ratelimitstore "escrowops/internal/ratelimit/store"
	statscache "escrowops/internal/stats/cache"
	stathandler "escrowops/internal/stats/handler"
	"escrowops/internal/stats/ledger"
	statmetrics "escrowops/internal/stats/metrics"
	statservice "escrowops/internal/stats/service"
	"escrowops/pkg/domain"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/requestcontext"
)

const (
	statsCacheKey   = "escrowops:stats:snapshot"
	intentRetention = 24 * time.Hour
)

// app is the assembled process: its router, the long-running workers to
// start next to it, and what to release on exit.
type app struct {
	router  http.Handler
	metrics *metrics.Metrics
	workers []func(ctx context.Context) error
	closers []func()

	groups *groupservice.Service
	fees   *feeservice.Service
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// bootstrap seeds the group pool and fee schedule on first start.
func (a *app) bootstrap(ctx context.Context, cfg config.Config) error {
	sysCtx := requestcontext.WithActor(ctx, domain.SystemActor)
	if _, err := a.groups.EnsurePool(sysCtx, cfg.Pool.Size); err != nil {
		return fmt.Errorf("seed group pool: %w", err)
	}
	if err := a.fees.SeedDefaults(sysCtx); err != nil {
		return fmt.Errorf("seed fee schedule: %w", err)
	}
	return nil
}

type stores struct {
	runner     tx.Runner
	audit      auditservice.Store
	offsets    forwarder.OffsetStore
	moderators modservice.Store
	fees       feeservice.Store
	groups     groupservice.Store
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger, migrate bool) (*app, error) {
	a := &app{metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	st, err := openStores(ctx, cfg, log, migrate, a)
	if err != nil {
		return nil, err
	}

	auditMetrics := auditmetrics.New()
	auditLog := auditservice.New(st.audit, auditservice.WithLogger(log), auditservice.WithMetrics(auditMetrics))

	registry := modservice.New(st.moderators, st.runner, auditLog,
		modservice.WithLogger(log), modservice.WithMetrics(modmetrics.New()))
	fees := feeservice.New(st.fees, st.runner, auditLog, registry,
		feeservice.WithLogger(log), feeservice.WithMetrics(feemetrics.New()))

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	ledgerPool, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	var (
		totals statservice.Ledger   = ledger.Static{}
		tables exportservice.Ledger = exportsource.Empty{}
	)
	if ledgerPool != nil {
		a.closers = append(a.closers, ledgerPool.Close)
		totals = ledger.NewPostgres(ledgerPool)
		tables = exportsource.NewPostgres(ledgerPool)
	} else {
		log.Warn("no ledger configured; user and deal totals read as zero")
	}

	statOpts := []statservice.Option{
		statservice.WithLogger(log),
		statservice.WithMetrics(statmetrics.New()),
		statservice.WithTTL(cfg.Stats.TTL),
	}
	if redisClient != nil {
		statOpts = append(statOpts, statservice.WithSharedCache(statscache.NewRedis(redisClient, statsCacheKey)))
	}
	stats := statservice.New(st.groups, totals, statOpts...)
	groups := groupservice.New(st.groups, st.runner, auditLog,
		groupservice.WithLogger(log),
		groupservice.WithMetrics(groupmetrics.New()),
		groupservice.WithInvalidator(stats),
	)

	gate, err := buildGate(ctx, cfg, log, st.runner, auditLog, redisClient, a)
	if err != nil {
		return nil, err
	}

	var messages botservice.Store = botstore.NewInMemory()
	if cfg.BotConfig.BaseURL != "" {
		messages = botstore.NewHTTP(cfg.BotConfig.BaseURL, cfg.BotConfig.Timeout, botstore.WithHTTPLogger(log))
	}
	bot := botservice.New(messages, st.runner, auditLog, botservice.WithLogger(log))
	export := exportservice.New(tables, groups, auditLog, exportservice.WithLogger(log))

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		a.closers = append(a.closers, producer.Close)
		if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions); err != nil {
			return nil, err
		}
		fwd := forwarder.New(auditLog, producer, st.offsets,
			forwarder.WithLogger(log),
			forwarder.WithMetrics(auditMetrics),
			forwarder.WithInterval(cfg.Kafka.PollInterval),
		)
		a.workers = append(a.workers, fwd.Run)
	}
	a.workers = append(a.workers, func(ctx context.Context) error {
		return gate.RunSweeper(ctx, cfg.Gate.SweepInterval)
	})

	var limiterStore ratelimitmw.Store = ratelimitstore.NewInMemory()
	if redisClient != nil {
		limiterStore = ratelimitstore.NewRedis(redisClient.Client)
	}
	limiter := ratelimitmw.New(limiterStore, map[ratelimitmodels.EndpointClass]ratelimitmodels.Limit{
		ratelimitmodels.ClassStandard:  {Requests: cfg.RateLimit.StandardPerMinute, Window: time.Minute},
		ratelimitmodels.ClassSensitive: {Requests: cfg.RateLimit.SensitivePerMinute, Window: time.Minute},
	}, log,
		ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
		ratelimitmw.WithMetrics(ratelimitmetrics.New()),
	)

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	a.router = httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        a.metrics,
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		MetricsToken:   cfg.Server.MetricsToken,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      limiter,
		OwnerOnly: []httpapi.Registrar{
			audithandler.New(auditLog, log),
		},
		Sensitive: []httpapi.Registrar{
			gatehandler.New(gate, log),
			exporthandler.New(export, log),
		},
		Handlers: []httpapi.Registrar{
			stathandler.New(stats, log),
			modhandler.New(registry, log),
			feehandler.New(fees, log),
			grouphandler.New(groups, log),
			bothandler.New(bot, log),
		},
	})
	a.groups = groups
	a.fees = fees
	ok = true
	return a, nil
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger, migrate bool, a *app) (stores, error) {
	if cfg.Postgres.DSN == "" {
		log.Warn("no postgres configured; control-plane state lives in process memory")
		return stores{
			runner:     tx.NewShardedRunner(cfg.Postgres.TxTimeout),
			audit:      auditstore.NewInMemory(),
			offsets:    auditstore.NewInMemoryOffsets(),
			moderators: modstore.NewInMemory(),
			fees:       feestore.NewInMemory(),
			groups:     groupstore.NewInMemory(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if migrate {
		if err := postgres.Migrate(db); err != nil {
			return stores{}, err
		}
	}
	return stores{
		runner:     tx.NewPostgresRunner(db, cfg.Postgres.TxTimeout),
		audit:      auditstore.NewPostgres(db),
		offsets:    auditstore.NewPostgresOffsets(db),
		moderators: modstore.NewPostgres(db),
		fees:       feestore.NewPostgres(db),
		groups:     groupstore.NewPostgres(db),
	}, nil
}

func openLedger(ctx context.Context, cfg config.LedgerConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	return ledger.Open(ctx, cfg.DSN)
}

func buildGate(ctx context.Context, cfg config.Config, log *slog.Logger, runner tx.Runner, auditLog *auditservice.Service, redisClient *platformredis.Client, a *app) (*gateservice.Service, error) {
	var intents gateservice.Store = gatestore.NewInMemory(intentRetention)
	if redisClient != nil {
		intents = gatestore.NewRedis(redisClient.Client, intentRetention)
	}

	var custody gateservice.Custody = gateadapters.Unconfigured{Name: "custody"}
	if cfg.Custody.BaseURL != "" {
		custody = gateadapters.NewCustodyHTTP(cfg.Custody.BaseURL, cfg.Custody.Timeout)
	}

	var bundles gateservice.Bundles = gateadapters.Unconfigured{Name: "bundle storage"}
	if cfg.S3.Bucket != "" {
		client, err := gateadapters.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		bundles = gateadapters.NewBundleS3(client, cfg.S3.Bucket)
	}

	var payouts gateservice.PayoutSubmitter = gateadapters.Unconfigured{Name: "payout submission"}
	if cfg.NATS.URL != "" {
		conn, err := gateadapters.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		submitter := gateadapters.NewPayoutNATS(conn, cfg.NATS.PayoutSubject, cfg.NATS.RequestTimeout)
		a.closers = append(a.closers, submitter.Close)
		payouts = submitter
	}

	return gateservice.New(intents, runner, auditLog, custody, bundles, payouts,
		gateservice.WithLogger(log),
		gateservice.WithMetrics(gatemetrics.New()),
		gateservice.WithConfirmTTL(cfg.Gate.ConfirmTTL),
		gateservice.WithBcryptCost(cfg.Gate.BcryptCost),
	), nil
}
