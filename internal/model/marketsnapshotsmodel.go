package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ MarketSnapshotsModel = (*customMarketSnapshotsModel)(nil)

type (
	// MarketSnapshotsModel keeps the latest derivatives context per
	// (exchange, symbol): funding rate, open interest and the headline
	// indicator values.
	MarketSnapshotsModel interface {
		Upsert(ctx context.Context, data *MarketSnapshots) error
		FindOne(ctx context.Context, exchange, symbol string) (*MarketSnapshots, error)
	}

	MarketSnapshots struct {
		Id           int64           `db:"id"`
		Exchange     string          `db:"exchange"`
		Symbol       string          `db:"symbol"`
		Price        float64         `db:"price"`
		FundingRate  sql.NullFloat64 `db:"funding_rate"`
		OpenInterest sql.NullFloat64 `db:"open_interest"`
		Ema20        sql.NullFloat64 `db:"ema20"`
		Macd         sql.NullFloat64 `db:"macd"`
		Rsi7         sql.NullFloat64 `db:"rsi7"`
		CreatedAt    time.Time       `db:"created_at"`
		UpdatedAt    time.Time       `db:"updated_at"`
	}

	customMarketSnapshotsModel struct {
		conn sqlx.SqlConn
	}
)

// NewMarketSnapshotsModel returns a model for the market_snapshots table.
func NewMarketSnapshotsModel(conn sqlx.SqlConn) MarketSnapshotsModel {
	return &customMarketSnapshotsModel{conn: conn}
}

func (m *customMarketSnapshotsModel) Upsert(ctx context.Context, data *MarketSnapshots) error {
	stmt := `
INSERT INTO public.market_snapshots (
    exchange, symbol, price, funding_rate, open_interest, ema20, macd, rsi7, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
ON CONFLICT (exchange, symbol) DO UPDATE SET
    price = EXCLUDED.price,
    funding_rate = EXCLUDED.funding_rate,
    open_interest = EXCLUDED.open_interest,
    ema20 = EXCLUDED.ema20,
    macd = EXCLUDED.macd,
    rsi7 = EXCLUDED.rsi7,
    updated_at = NOW();`
	_, err := m.conn.ExecCtx(ctx, stmt,
		data.Exchange, data.Symbol, data.Price,
		data.FundingRate, data.OpenInterest,
		data.Ema20, data.Macd, data.Rsi7)
	return err
}

func (m *customMarketSnapshotsModel) FindOne(ctx context.Context, exchange, symbol string) (*MarketSnapshots, error) {
	var resp MarketSnapshots
	query := `SELECT id, exchange, symbol, price, funding_rate, open_interest, ema20, macd, rsi7, created_at, updated_at
FROM public.market_snapshots WHERE exchange = $1 AND symbol = $2 LIMIT 1`
	err := m.conn.QueryRowCtx(ctx, &resp, query, exchange, symbol)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}
