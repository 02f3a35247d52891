package index

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// expiryFormats are tried in order against every date-shaped symbol token.
var expiryFormats = []string{
	"060102",   // YYMMDD
	"2Jan06",   // DDMMMYY, Deribit style 28JUN24
	"20060102", // YYYYMMDD
	"01022006", // MMDDYYYY
	"02012006", // DDMMYYYY
}

// SymbolInfo is the parsed content of an option symbol.
type SymbolInfo struct {
	Base   string
	Expiry time.Time
	Strike float64
	Type   OptionType
}

// ParseSymbol extracts base, expiry, strike and option type from a
// BASE-EXPIRY-STRIKE-{C|P} shaped symbol. Unified forms with a
// "BASE/QUOTE:SETTLE" prefix are accepted. The expiry is returned at
// midnight UTC.
func ParseSymbol(symbol string) (SymbolInfo, error) {
	parts := strings.Split(symbol, "-")
	if len(parts) < 4 {
		return SymbolInfo{}, fmt.Errorf("%w: %q has %d dash-separated tokens", ErrParse, symbol, len(parts))
	}
	n := len(parts)

	strike, err := strconv.ParseFloat(parts[n-2], 64)
	if err != nil || strike <= 0 {
		return SymbolInfo{}, fmt.Errorf("%w: %q strike token %q", ErrParse, symbol, parts[n-2])
	}

	var optType OptionType
	switch strings.ToUpper(parts[n-1]) {
	case "C", "CALL":
		optType = Call
	case "P", "PUT":
		optType = Put
	default:
		return SymbolInfo{}, fmt.Errorf("%w: %q option type token %q", ErrParse, symbol, parts[n-1])
	}

	expiry, ok := parseExpiry(strings.Join(parts[:n-2], "-"))
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %q has no expiry token", ErrParse, symbol)
	}

	base := parts[0]
	if i := strings.IndexAny(base, "/:"); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return SymbolInfo{}, fmt.Errorf("%w: %q has empty base", ErrParse, symbol)
	}

	return SymbolInfo{
		Base:   strings.ToUpper(base),
		Expiry: expiry,
		Strike: strike,
		Type:   optType,
	}, nil
}

// ParseExpiry parses a single expiry token with the supported date formats.
func ParseExpiry(token string) (time.Time, error) {
	if t, ok := parseExpiryToken(token); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: expiry %q", ErrParse, token)
}

func parseExpiry(prefix string) (time.Time, bool) {
	replacer := strings.NewReplacer(":", "-", "/", "-", ".", "-")
	for _, token := range strings.Split(replacer.Replace(prefix), "-") {
		if token == "" || isAlpha(token) {
			continue
		}
		if t, ok := parseExpiryToken(token); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseExpiryToken(token string) (time.Time, bool) {
	for _, layout := range expiryFormats {
		if t, err := time.ParseInLocation(layout, token, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// DeribitSymbol converts a Deribit instrument name (BTC-28JUN24-60000-C) to
// the unified form BTC/USD:BTC-240628-60000-C.
func DeribitSymbol(instrument string) (string, error) {
	parts := strings.Split(instrument, "-")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: deribit instrument %q", ErrParse, instrument)
	}
	expiry, err := ParseExpiry(parts[1])
	if err != nil {
		return "", err
	}
	base := strings.ToUpper(parts[0])
	return fmt.Sprintf("%s/USD:%s-%s-%s-%s", base, base, expiry.Format("060102"), parts[2], parts[3]), nil
}

// OKXInstIDToSymbol converts an OKX instrument id (BTC-USD-240628-60000-C)
// to the unified form BTC/USD:BTC-240628-60000-C.
func OKXInstIDToSymbol(instID string) (string, error) {
	parts := strings.Split(instID, "-")
	if len(parts) != 5 {
		return "", fmt.Errorf("%w: okx instrument %q", ErrParse, instID)
	}
	return fmt.Sprintf("%s/%s:%s-%s-%s-%s", parts[0], parts[1], parts[0], parts[2], parts[3], parts[4]), nil
}

// BinanceSymbol converts a Binance options symbol (BTC-240628-60000-C) to
// the unified USD form BTC/USD:USD-240628-60000-C. Symbols already in
// unified form have USDT replaced by USD.
func BinanceSymbol(symbol string) (string, error) {
	if strings.Contains(symbol, ":") {
		return ConvertUSDTToUSD(symbol), nil
	}
	parts := strings.Split(symbol, "-")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: binance symbol %q", ErrParse, symbol)
	}
	return fmt.Sprintf("%s/USD:USD-%s-%s-%s", parts[0], parts[1], parts[2], parts[3]), nil
}

// ConvertUSDTToUSD rewrites USDT to USD in every colon-separated part.
func ConvertUSDTToUSD(symbol string) string {
	parts := strings.Split(symbol, ":")
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(part, "USDT", "USD")
	}
	return strings.Join(parts, ":")
}
