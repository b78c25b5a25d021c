// Package symbol maps user-facing tickers to canonical provider symbols
// (CODE.EXCHANGE) and classifies them for precision and risk rules.
package symbol

import (
	"fmt"
	"strings"

	"marketlens/internal/model"
)

// Class is the asset class inferred from a canonical symbol.
type Class int

const (
	ClassOther Class = iota
	ClassGold
	ClassMetal
	ClassFX
	ClassFXJPY
	ClassCrypto
	ClassIndex
	ClassFuture
)

func (c Class) String() string {
	switch c {
	case ClassGold:
		return "gold"
	case ClassMetal:
		return "metal"
	case ClassFX:
		return "fx"
	case ClassFXJPY:
		return "fx-jpy"
	case ClassCrypto:
		return "crypto"
	case ClassIndex:
		return "index"
	case ClassFuture:
		return "future"
	default:
		return "other"
	}
}

// aliases maps common user tickers to canonical provider symbols.
var aliases = map[string]string{
	"XAUUSD": "XAUUSD.FOREX",
	"GOLD":   "XAUUSD.FOREX",
	"XAGUSD": "XAGUSD.FOREX",
	"SILVER": "XAGUSD.FOREX",
	"EURUSD": "EURUSD.FOREX",
	"GBPUSD": "GBPUSD.FOREX",
	"USDJPY": "USDJPY.FOREX",
	"USDCHF": "USDCHF.FOREX",
	"AUDUSD": "AUDUSD.FOREX",
	"USDCAD": "USDCAD.FOREX",
	"NZDUSD": "NZDUSD.FOREX",

	"BTC":    "BTC-USD.CC",
	"BTCUSD": "BTC-USD.CC",
	"ETH":    "ETH-USD.CC",
	"ETHUSD": "ETH-USD.CC",
	"XRP":    "XRP-USD.CC",
	"XRPUSD": "XRP-USD.CC",

	"US30":   "DJI.INDX",
	"DJI":    "DJI.INDX",
	"NAS100": "NDX.INDX",
	"NDX":    "NDX.INDX",
	"SPX500": "GSPC.INDX",
	"US500":  "GSPC.INDX",
	"SPX":    "GSPC.INDX",
	"DAX":    "GDAXI.INDX",
	"GER40":  "GDAXI.INDX",
	"UK100":  "FTSE.INDX",
	"FTSE":   "FTSE.INDX",
	"JP225":  "N225.INDX",
	"NIKKEI": "N225.INDX",
	"DXY":    "DXY.INDX",

	"USOIL":  "CL.F",
	"UKOIL":  "BRN.F",
	"COFFEE": "KC.F",
}

var cryptoBases = map[string]bool{
	"LTC":  true,
	"ADA":  true,
	"DOT":  true,
	"SOL":  true,
	"DOGE": true,
	"BNB":  true,
	"XLM":  true,
	"LINK": true,
}

// Normalize maps a user ticker to a canonical symbol using local rules
// only. It is also the fallback when remote resolution fails.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "/", "")
	if s == "" {
		return "", fmt.Errorf("%w: empty symbol", model.ErrValidation)
	}
	if strings.ContainsAny(s, " \t\n?#&") {
		return "", fmt.Errorf("%w: invalid symbol %q", model.ErrValidation, raw)
	}
	if v, ok := aliases[s]; ok {
		return v, nil
	}
	if strings.Contains(s, ".") {
		return s, nil
	}
	if len(s) == 6 && strings.HasSuffix(s, "USD") {
		return s + ".FOREX", nil
	}
	if cryptoBases[s] {
		return s + "-USD.CC", nil
	}
	if strings.HasSuffix(s, "-USD") {
		return s + ".CC", nil
	}
	return s, nil
}

// Code strips the exchange suffix: "EURUSD.FOREX" -> "EURUSD".
func Code(canonical string) string {
	if i := strings.LastIndexByte(canonical, '.'); i > 0 {
		return canonical[:i]
	}
	return canonical
}

// Exchange returns the suffix after the last dot, or "".
func Exchange(canonical string) string {
	if i := strings.LastIndexByte(canonical, '.'); i > 0 {
		return canonical[i+1:]
	}
	return ""
}

// Classify infers the asset class of a canonical symbol.
func Classify(canonical string) Class {
	s := strings.ToUpper(canonical)
	code, ex := Code(s), Exchange(s)
	switch {
	case strings.HasPrefix(code, "XAU"):
		return ClassGold
	case strings.HasPrefix(code, "XAG") || strings.HasPrefix(code, "XPT") || strings.HasPrefix(code, "XPD"):
		return ClassMetal
	case ex == "FOREX" && strings.Contains(code, "JPY"):
		return ClassFXJPY
	case ex == "FOREX":
		return ClassFX
	case ex == "CC" || strings.HasSuffix(code, "-USD"):
		return ClassCrypto
	case ex == "INDX":
		return ClassIndex
	case ex == "F" || ex == "COMM":
		return ClassFuture
	default:
		return ClassOther
	}
}

// Decimals is the price precision used when rounding trade levels.
func Decimals(canonical string) int {
	switch Classify(canonical) {
	case ClassFXJPY:
		return 3
	case ClassFX:
		return 5
	default:
		return 2
	}
}

// MinRiskReward is the smallest acceptable reward:risk for a setup.
func MinRiskReward(canonical string) float64 {
	switch Classify(canonical) {
	case ClassFX, ClassFXJPY:
		return 1.5
	default:
		return 2.0
	}
}

// StreamFeed selects the streaming endpoint family for a symbol.
func StreamFeed(canonical string) string {
	switch Classify(canonical) {
	case ClassFX, ClassFXJPY, ClassGold, ClassMetal:
		return "forex"
	case ClassCrypto:
		return "crypto"
	default:
		return "us"
	}
}

// StreamSymbol is the symbol as the streaming feed expects it.
func StreamSymbol(canonical string) string {
	return Code(strings.ToUpper(canonical))
}
