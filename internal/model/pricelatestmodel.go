package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PriceLatestModel = (*customPriceLatestModel)(nil)

type (
	// PriceLatestModel keeps one row per (exchange, symbol) holding the
	// most recent price and the raw snapshot payload.
	PriceLatestModel interface {
		Upsert(ctx context.Context, data *PriceLatest) error
		FindOne(ctx context.Context, exchange, symbol string) (*PriceLatest, error)
	}

	PriceLatest struct {
		Id        int64          `db:"id"`
		Exchange  string         `db:"exchange"`
		Symbol    string         `db:"symbol"`
		Price     float64        `db:"price"`
		TsMs      int64          `db:"ts_ms"`
		Raw       sql.NullString `db:"raw"`
		CreatedAt time.Time      `db:"created_at"`
		UpdatedAt time.Time      `db:"updated_at"`
	}

	customPriceLatestModel struct {
		conn sqlx.SqlConn
	}
)

// NewPriceLatestModel returns a model for the price_latest table.
func NewPriceLatestModel(conn sqlx.SqlConn) PriceLatestModel {
	return &customPriceLatestModel{conn: conn}
}

func (m *customPriceLatestModel) Upsert(ctx context.Context, data *PriceLatest) error {
	stmt := `
INSERT INTO public.price_latest (exchange, symbol, price, ts_ms, raw, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (exchange, symbol) DO UPDATE SET
    price = EXCLUDED.price,
    ts_ms = EXCLUDED.ts_ms,
    raw = EXCLUDED.raw,
    updated_at = NOW();`
	_, err := m.conn.ExecCtx(ctx, stmt, data.Exchange, data.Symbol, data.Price, data.TsMs, data.Raw)
	return err
}

func (m *customPriceLatestModel) FindOne(ctx context.Context, exchange, symbol string) (*PriceLatest, error) {
	var resp PriceLatest
	query := `SELECT id, exchange, symbol, price, ts_ms, raw, created_at, updated_at
FROM public.price_latest WHERE exchange = $1 AND symbol = $2 LIMIT 1`
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
