package model

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PriceTicksModel = (*customPriceTicksModel)(nil)

type (
	// PriceTicksModel appends one row per assembled snapshot, giving a
	// queryable price history alongside the latest-value table.
	PriceTicksModel interface {
		Insert(ctx context.Context, data *PriceTicks) error
		ListRecent(ctx context.Context, exchange, symbol string, limit int) ([]*PriceTicks, error)
	}

	PriceTicks struct {
		Id        int64     `db:"id"`
		Exchange  string    `db:"exchange"`
		Symbol    string    `db:"symbol"`
		Price     float64   `db:"price"`
		TsMs      int64     `db:"ts_ms"`
		CreatedAt time.Time `db:"created_at"`
	}

	customPriceTicksModel struct {
		conn sqlx.SqlConn
	}
)

// NewPriceTicksModel returns a model for the price_ticks table.
func NewPriceTicksModel(conn sqlx.SqlConn) PriceTicksModel {
	return &customPriceTicksModel{conn: conn}
}

func (m *customPriceTicksModel) Insert(ctx context.Context, data *PriceTicks) error {
	stmt := `INSERT INTO public.price_ticks (exchange, symbol, price, ts_ms, created_at)
VALUES ($1, $2, $3, $4, NOW())`
	_, err := m.conn.ExecCtx(ctx, stmt, data.Exchange, data.Symbol, data.Price, data.TsMs)
	return err
}

func (m *customPriceTicksModel) ListRecent(ctx context.Context, exchange, symbol string, limit int) ([]*PriceTicks, error) {
	if limit <= 0 {
		limit = 100
	}
	var resp []*PriceTicks
	query := `SELECT id, exchange, symbol, price, ts_ms, created_at
FROM public.price_ticks WHERE exchange = $1 AND symbol = $2 ORDER BY ts_ms DESC LIMIT $3`
	if err := m.conn.QueryRowsCtx(ctx, &resp, query, exchange, symbol, limit); err != nil {
		return nil, err
	}
	return resp, nil
}
