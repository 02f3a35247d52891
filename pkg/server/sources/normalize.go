package sources

import (
	"strings"
)

// Underlying aliases used by venues for the same asset.
var underlyingAliases = map[string]string{
	"XBT":   "BTC",
	"WBTC":  "BTC",
	"WETH":  "ETH",
	"STETH": "ETH",
}

// Stablecoin quote currencies, all considered equivalent to USD.
var stablecoinAliases = map[string]string{
	"USDT": "USD",
	"USDC": "USD",
	"BUSD": "USD",
	"DAI":  "USD",
	"TUSD": "USD",
	"USDD": "USD",
	"USDP": "USD",
}

// NormalizeUnderlying converts an underlying to its canonical form.
// Examples:
//   - btc -> BTC
//   - XBT -> BTC
//   - BTC-USD, BTC/USDT, BTCUSDT -> BTC
func NormalizeUnderlying(underlying string) string {
	u := strings.ToUpper(strings.TrimSpace(underlying))
	if i := strings.IndexAny(u, "-/:"); i > 0 {
		u = u[:i]
	}
	for stable := range stablecoinAliases {
		if strings.HasSuffix(u, stable) && len(u) > len(stable) {
			u = strings.TrimSuffix(u, stable)
			break
		}
	}
	if canonical, ok := underlyingAliases[u]; ok {
		return canonical
	}
	return u
}

// NormalizeQuote maps stablecoin quote currencies to USD.
func NormalizeQuote(quote string) string {
	q := strings.ToUpper(strings.TrimSpace(quote))
	if normalized, ok := stablecoinAliases[q]; ok {
		return normalized
	}
	return q
}

// IsEquivalentUnderlying checks if two underlyings are equivalent after normalization
func IsEquivalentUnderlying(a, b string) bool {
	return NormalizeUnderlying(a) == NormalizeUnderlying(b)
}
