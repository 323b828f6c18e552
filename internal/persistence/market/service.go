package marketpersist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "marketpulse/internal/cache"
	"marketpulse/internal/model"
	"marketpulse/pkg/market"
)

// Service mirrors assembled market data into Postgres and Redis. It sits
// behind the market.Persistence interface so the data path never depends
// on storage being configured.
type Service struct {
	sqlConn        sqlx.SqlConn
	symbolsModel   model.SymbolsModel
	priceLatest    model.PriceLatestModel
	priceTicks     model.PriceTicksModel
	snapshotsModel model.MarketSnapshotsModel
	cache          gocache.Cache
	ttl            cachekeys.TTLSet
}

// Config enumerates dependencies required to persist market data.
type Config struct {
	SQLConn        sqlx.SqlConn
	SymbolsModel   model.SymbolsModel
	PriceLatest    model.PriceLatestModel
	PriceTicks     model.PriceTicksModel
	SnapshotsModel model.MarketSnapshotsModel
	Cache          gocache.Cache
	TTL            cachekeys.TTLSet
}

// NewService wires a market persistence service. Returns nil when dependencies missing.
func NewService(cfg Config) market.Persistence {
	if cfg.SQLConn == nil {
		return nil
	}
	return &Service{
		sqlConn:        cfg.SQLConn,
		symbolsModel:   cfg.SymbolsModel,
		priceLatest:    cfg.PriceLatest,
		priceTicks:     cfg.PriceTicks,
		snapshotsModel: cfg.SnapshotsModel,
		cache:          cfg.Cache,
		ttl:            cfg.TTL,
	}
}

// UpsertSymbols persists the instrument directory and refreshes the
// cached listing for the exchange.
func (s *Service) UpsertSymbols(ctx context.Context, exchange string, symbols []market.SymbolInfo) error {
	if s == nil || s.sqlConn == nil || s.symbolsModel == nil || len(symbols) == 0 {
		return nil
	}
	for _, info := range symbols {
		if strings.TrimSpace(info.Symbol) == "" {
			continue
		}
		row := &model.Symbols{
			Exchange:     exchange,
			Symbol:       info.Symbol,
			Status:       info.Status,
			ContractType: nullString(info.ContractType),
			BaseAsset:    nullString(info.BaseAsset),
			QuoteAsset:   nullString(info.QuoteAsset),
		}
		if err := s.symbolsModel.Upsert(ctx, row); err != nil {
			return fmt.Errorf("marketpersist: upsert symbol %s/%s: %w", exchange, info.Symbol, err)
		}
	}
	s.cacheSymbolDirectory(ctx, exchange, symbols)
	return nil
}

// RecordSnapshot persists latest price and indicator context to
// Postgres and Redis. Called best-effort from the report path.
func (s *Service) RecordSnapshot(ctx context.Context, exchange string, data *market.Data) error {
	if s == nil || s.sqlConn == nil || data == nil || strings.TrimSpace(data.Symbol) == "" {
		return nil
	}
	now := time.Now().UTC()
	raw, _ := json.Marshal(data)

	if s.priceLatest != nil {
		row := &model.PriceLatest{
			Exchange: exchange,
			Symbol:   data.Symbol,
			Price:    data.CurrentPrice,
			TsMs:     now.UnixMilli(),
			Raw:      nullString(string(raw)),
		}
		if err := s.priceLatest.Upsert(ctx, row); err != nil {
			return fmt.Errorf("marketpersist: upsert price %s/%s: %w", exchange, data.Symbol, err)
		}
	}

	if s.priceTicks != nil {
		tick := &model.PriceTicks{
			Exchange: exchange,
			Symbol:   data.Symbol,
			Price:    data.CurrentPrice,
			TsMs:     now.UnixMilli(),
		}
		if err := s.priceTicks.Insert(ctx, tick); err != nil {
			return fmt.Errorf("marketpersist: insert tick %s/%s: %w", exchange, data.Symbol, err)
		}
	}

	if s.snapshotsModel != nil {
		snap := &model.MarketSnapshots{
			Exchange:    exchange,
			Symbol:      data.Symbol,
			Price:       data.CurrentPrice,
			FundingRate: sql.NullFloat64{Float64: data.FundingRate, Valid: true},
			Ema20:       sql.NullFloat64{Float64: data.CurrentEMA20, Valid: true},
			Macd:        sql.NullFloat64{Float64: data.CurrentMACD, Valid: true},
			Rsi7:        sql.NullFloat64{Float64: data.CurrentRSI7, Valid: true},
		}
		if data.OpenInterest != nil {
			snap.OpenInterest = sql.NullFloat64{Float64: data.OpenInterest.Latest, Valid: true}
		}
		if err := s.snapshotsModel.Upsert(ctx, snap); err != nil {
			return fmt.Errorf("marketpersist: upsert snapshot %s/%s: %w", exchange, data.Symbol, err)
		}
	}

	s.cachePrice(ctx, exchange, data.Symbol, data.CurrentPrice, now)
	s.cacheSnapshot(ctx, exchange, data)
	s.updateCryptoPrices(ctx, exchange, data.Symbol, data.CurrentPrice)
	return nil
}

func (s *Service) cacheSymbolDirectory(ctx context.Context, exchange string, symbols []market.SymbolInfo) {
	if s.cache == nil {
		return
	}
	ttl := cachekeys.SymbolDirectoryTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.SymbolDirectoryKey(exchange)
	if err := s.cache.SetWithExpireCtx(ctx, key, symbols, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache symbols key=%s err=%v", key, err)
	}
}

func (s *Service) cachePrice(ctx context.Context, exchange, symbol string, price float64, ts time.Time) {
	if s.cache == nil {
		return
	}
	ttl := cachekeys.PriceTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	payload := map[string]any{
		"price": price,
		"ts":    ts.UnixMilli(),
	}
	// Exchange-scoped key
	key := cachekeys.PriceLatestByExchangeKey(exchange, symbol)
	if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache price key=%s err=%v", key, err)
	}
	// Global key
	global := cachekeys.PriceLatestKey(symbol)
	if err := s.cache.SetWithExpireCtx(ctx, global, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache price key=%s err=%v", global, err)
	}
}

func (s *Service) cacheSnapshot(ctx context.Context, exchange string, data *market.Data) {
	if s.cache == nil {
		return
	}
	ttl := cachekeys.MarketSnapshotTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.MarketSnapshotKey(exchange, data.Symbol)
	payload := map[string]any{
		"price":        data.CurrentPrice,
		"change_1h":    data.PriceChange1h,
		"change_4h":    data.PriceChange4h,
		"funding":      data.FundingRate,
		"oi":           data.OpenInterest,
		"ema20":        data.CurrentEMA20,
		"macd":         data.CurrentMACD,
		"rsi7":         data.CurrentRSI7,
		"timestamp_ms": time.Now().UTC().UnixMilli(),
	}
	if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache snapshot key=%s err=%v", key, err)
	}

	fundingKey := cachekeys.FundingRateKey(exchange, data.Symbol)
	fundingTTL := cachekeys.FundingRateTTL(s.ttl)
	if fundingTTL > 0 {
		if err := s.cache.SetWithExpireCtx(ctx, fundingKey, data.FundingRate, fundingTTL); err != nil {
			logx.WithContext(ctx).Errorf("marketpersist: cache funding key=%s err=%v", fundingKey, err)
		}
	}
}

func (s *Service) updateCryptoPrices(ctx context.Context, exchange, symbol string, price float64) {
	if s.cache == nil {
		return
	}
	key := cachekeys.CryptoPricesKey()
	var payload map[string]float64
	if err := s.cache.GetCtx(ctx, key, &payload); err != nil && !s.cache.IsNotFound(err) {
		logx.WithContext(ctx).Errorf("marketpersist: load crypto prices key=%s err=%v", key, err)
		return
	}
	if payload == nil {
		payload = make(map[string]float64)
	}
	field := fmt.Sprintf("%s:%s", exchange, symbol)
	payload[field] = price
	ttl := cachekeys.CryptoPricesTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache crypto prices key=%s err=%v", key, err)
	}
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}
