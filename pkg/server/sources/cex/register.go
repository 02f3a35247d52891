package cex

import (
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

func init() {
	// Register all option venues
	sources.Register("cex.deribit", NewDeribitSource)
	sources.Register("cex.okx", NewOKXSource)
	sources.Register("cex.binance", NewBinanceSource)
}
