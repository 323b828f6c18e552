package svc

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "marketpulse/internal/cache"
	"marketpulse/internal/config"
	"marketpulse/internal/model"
	marketpersist "marketpulse/internal/persistence/market"
	marketpkg "marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
	"marketpulse/pkg/market/fundingcache"
	"marketpulse/pkg/market/report"
	"marketpulse/pkg/market/rest"
	"marketpulse/pkg/market/stream"
)

// ServiceContext wires the market data pipeline: the REST and stream
// clients for the configured exchange, the rolling kline monitor, the
// report builder, and the optional Postgres/Redis persistence layer.
type ServiceContext struct {
	Config config.Config

	MarketConfig *marketpkg.Config
	Profile      exchanges.Profile

	Rest    *rest.Client
	Stream  *stream.Client
	Monitor *stream.Monitor
	Report  *report.Builder

	Persistence marketpkg.Persistence

	// Optional DB models; nil unless Postgres.DSN is configured.
	DBConn               sqlx.SqlConn
	SymbolsModel         model.SymbolsModel
	PriceTicksModel      model.PriceTicksModel
	PriceLatestModel     model.PriceLatestModel
	MarketSnapshotsModel model.MarketSnapshotsModel

	Cache gocache.Cache
	TTL   cachekeys.TTLSet
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	marketCfg := c.Market.Value
	if marketCfg == nil {
		log.Fatalf("market config is required; set Market.File in the service config")
	}
	svc.MarketConfig = marketCfg

	svc.Profile = exchanges.Select(marketCfg.Exchange, marketCfg.APIKey)
	svc.Rest = rest.NewClient(svc.Profile, rest.WithTimeout(marketCfg.HTTPTimeout))
	svc.Stream = stream.NewClient(svc.Profile,
		stream.WithBatchSize(marketCfg.BatchSize),
		stream.WithSubscriberBuffer(marketCfg.SubscriberBuffer),
	)
	svc.Monitor = stream.NewMonitor(svc.Stream, svc.Rest, marketCfg.KlineWindow)

	// Only inject DB models when a DSN is provided; the data path keeps
	// working without storage.
	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.SymbolsModel = model.NewSymbolsModel(conn)
		svc.PriceTicksModel = model.NewPriceTicksModel(conn)
		svc.PriceLatestModel = model.NewPriceLatestModel(conn)
		svc.MarketSnapshotsModel = model.NewMarketSnapshotsModel(conn)
	}

	if c.Redis.Host != "" {
		clusterConf := gocache.CacheConf{{RedisConf: c.Redis, Weight: 100}}
		svc.Cache = gocache.New(clusterConf, syncx.NewSingleFlight(), gocache.NewStat(cachekeys.Namespace), model.ErrNotFound)
	}

	svc.Persistence = marketpersist.NewService(marketpersist.Config{
		SQLConn:        svc.DBConn,
		SymbolsModel:   svc.SymbolsModel,
		PriceLatest:    svc.PriceLatestModel,
		PriceTicks:     svc.PriceTicksModel,
		SnapshotsModel: svc.MarketSnapshotsModel,
		Cache:          svc.Cache,
		TTL:            svc.TTL,
	})

	funding := fundingcache.New[float64](fundingcache.WithTTL[float64](marketCfg.FundingTTL))
	opts := []report.Option{report.WithFundingCache(funding)}
	if svc.Persistence != nil {
		opts = append(opts, report.WithPersistence(svc.Persistence))
	}
	svc.Report = report.NewBuilder(svc.Monitor, svc.Rest, opts...)

	return svc
}
