package config

import (
	"marketpulse/pkg/market"
)

// MustLoadMarket loads etc/market.yaml from the project root and panics
// on error. It isolates market config so tools and tests do not need
// the full application config.
func MustLoadMarket() *market.Config {
	return market.MustLoad()
}
