package market

import "context"

// Provider exposes exchange-agnostic market data.
type Provider interface {
	// Get assembles the full market snapshot for the supplied symbol.
	Get(ctx context.Context, symbol string) (*Data, error)
	// GetCurrentPrice returns the latest traded/mid price.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Persistence hooks allow the data path to mirror market data into
// external stores without blocking or failing the read path.
type Persistence interface {
	// UpsertSymbols persists instrument metadata for the exchange.
	UpsertSymbols(ctx context.Context, exchange string, symbols []SymbolInfo) error
	// RecordSnapshot persists a single assembled market snapshot.
	RecordSnapshot(ctx context.Context, exchange string, data *Data) error
}
