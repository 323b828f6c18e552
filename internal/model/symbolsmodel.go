package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ SymbolsModel = (*customSymbolsModel)(nil)

type (
	// SymbolsModel persists the instrument directory reported by the
	// exchange metadata endpoint.
	SymbolsModel interface {
		Upsert(ctx context.Context, data *Symbols) error
		FindOne(ctx context.Context, exchange, symbol string) (*Symbols, error)
		ListTrading(ctx context.Context, exchange string) ([]*Symbols, error)
	}

	Symbols struct {
		Id           int64          `db:"id"`
		Exchange     string         `db:"exchange"`
		Symbol       string         `db:"symbol"`
		Status       string         `db:"status"`
		ContractType sql.NullString `db:"contract_type"`
		BaseAsset    sql.NullString `db:"base_asset"`
		QuoteAsset   sql.NullString `db:"quote_asset"`
		CreatedAt    time.Time      `db:"created_at"`
		UpdatedAt    time.Time      `db:"updated_at"`
	}

	customSymbolsModel struct {
		conn sqlx.SqlConn
	}
)

// NewSymbolsModel returns a model for the symbols table.
func NewSymbolsModel(conn sqlx.SqlConn) SymbolsModel {
	return &customSymbolsModel{conn: conn}
}

func (m *customSymbolsModel) Upsert(ctx context.Context, data *Symbols) error {
	stmt := `
INSERT INTO public.symbols (exchange, symbol, status, contract_type, base_asset, quote_asset, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
ON CONFLICT (exchange, symbol) DO UPDATE SET
    status = EXCLUDED.status,
    contract_type = EXCLUDED.contract_type,
    base_asset = EXCLUDED.base_asset,
    quote_asset = EXCLUDED.quote_asset,
    updated_at = NOW();`
	_, err := m.conn.ExecCtx(ctx, stmt,
		data.Exchange, data.Symbol, data.Status,
		data.ContractType, data.BaseAsset, data.QuoteAsset)
	return err
}

func (m *customSymbolsModel) FindOne(ctx context.Context, exchange, symbol string) (*Symbols, error) {
	var resp Symbols
	query := `SELECT id, exchange, symbol, status, contract_type, base_asset, quote_asset, created_at, updated_at
FROM public.symbols WHERE exchange = $1 AND symbol = $2 LIMIT 1`
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

func (m *customSymbolsModel) ListTrading(ctx context.Context, exchange string) ([]*Symbols, error) {
	var resp []*Symbols
	query := `SELECT id, exchange, symbol, status, contract_type, base_asset, quote_asset, created_at, updated_at
FROM public.symbols WHERE exchange = $1 AND status = 'TRADING' ORDER BY symbol`
	err := m.conn.QueryRowsCtx(ctx, &resp, query, exchange)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
