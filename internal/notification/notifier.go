// Package notification delivers trade-setup alerts to external channels
// (Telegram, generic webhooks, the process log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"marketlens/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level     AlertLevel        `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Symbol    string            `json:"symbol,omitempty"`
	Timeframe model.Timeframe   `json:"timeframe,omitempty"`
	Setup     *model.TradeSetup `json:"trade_setup,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// SetupAlert builds the alert for a report carrying a trade setup.
// ok is false when the report has no setup.
func SetupAlert(r model.Report) (Alert, bool) {
	if r.Setup == nil {
		return Alert{}, false
	}
	s := r.Setup
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s %s setup", r.Symbol, r.Timeframe, s.Direction),
		Message: fmt.Sprintf("entry %g, stop %g, target %g, RR %.2f, confidence %d%% (%s)",
			s.Entry, s.StopLoss, s.TakeProfit, s.RiskReward, s.Confidence, r.Trend.Reason),
		Symbol:    r.Symbol,
		Timeframe: r.Timeframe,
		Setup:     s,
	}, true
}

// LogNotifier logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all of its notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
