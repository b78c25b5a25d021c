package analysis

import (
	"fmt"
	"math"
	"strings"

	"marketlens/internal/model"
)

const (
	rsiOversold   = 30
	rsiOverbought = 70
	rsiElevated   = 60
	rsiDepressed  = 40

	neutralConfidence = 50
	macdBonus         = 5
	maxConfidence     = 85
	maxReasons        = 3
)

// Trend counts bullish and bearish signals in the indicator set relative to
// price. RSI between the extremes adds a reason but no vote.
func Trend(bars []model.Bar, set model.IndicatorSet, price float64) model.Trend {
	if len(bars) == 0 {
		return model.Trend{Direction: "neutral", Recommendation: model.BiasHold, Reason: "Insufficient data"}
	}
	if !(price > 0) || math.IsInf(price, 0) {
		price = bars[len(bars)-1].Close
	}

	var (
		bull, bear int
		reasons    []string
	)

	if set.RSI != nil {
		r := *set.RSI
		switch {
		case r < rsiOversold:
			bull++
			reasons = append(reasons, "RSI oversold")
		case r > rsiOverbought:
			bear++
			reasons = append(reasons, "RSI overbought")
		case r >= rsiElevated:
			reasons = append(reasons, fmt.Sprintf("RSI elevated (%.1f)", r))
		case r <= rsiDepressed:
			reasons = append(reasons, fmt.Sprintf("RSI depressed (%.1f)", r))
		default:
			reasons = append(reasons, fmt.Sprintf("RSI neutral (%.1f)", r))
		}
	}

	switch {
	case set.SMA20 != nil && set.SMA50 != nil:
		fast, slow := *set.SMA20, *set.SMA50
		if price > fast && fast > slow {
			bull++
			reasons = append(reasons, "Price > SMA20 > SMA50")
		} else if price < fast && fast < slow {
			bear++
			reasons = append(reasons, "Price < SMA20 < SMA50")
		}
	case set.SMA20 != nil:
		if price > *set.SMA20 {
			bull++
			reasons = append(reasons, "Price > SMA20")
		} else {
			bear++
			reasons = append(reasons, "Price < SMA20")
		}
	}

	hasMACD := set.MACD != nil && set.MACD.MACD != nil && set.MACD.Signal != nil
	if hasMACD {
		if *set.MACD.MACD > *set.MACD.Signal {
			bull++
			reasons = append(reasons, "MACD bullish")
		} else {
			bear++
			reasons = append(reasons, "MACD bearish")
		}
	}

	t := model.Trend{Direction: "neutral", Recommendation: model.BiasHold, Reasons: reasons}
	switch {
	case bull > bear:
		t.Direction, t.Recommendation = "bullish", model.BiasBuy
	case bear > bull:
		t.Direction, t.Recommendation = "bearish", model.BiasSell
	}

	total := bull + bear
	conf := neutralConfidence
	if total > 0 {
		conf = int(math.Round(float64(max(bull, bear)) / float64(total) * 100))
	}
	if total >= 2 && hasMACD {
		conf += macdBonus
	}
	t.Confidence = min(conf, maxConfidence)

	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	t.Reason = strings.Join(reasons, ", ")
	return t
}
