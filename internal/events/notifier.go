package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

const alertSubjectPrefix = "alerts."

type subjectPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes alerts on alerts.<kind> for the notification service.
// *nats.Conn satisfies subjectPublisher.
type NATSNotifier struct {
	conn subjectPublisher
}

func NewNATSNotifier(conn subjectPublisher) *NATSNotifier {
	return &NATSNotifier{conn: conn}
}

func AlertSubject(kind models.AlertKind) string {
	return alertSubjectPrefix + string(kind)
}

func (n *NATSNotifier) Notify(_ context.Context, alert models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := n.conn.Publish(AlertSubject(alert.Kind), data); err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.ID, err)
	}
	telemetry.Logger.Info("Alert published",
		zap.String("alert_id", alert.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", string(alert.Severity)),
	)
	return nil
}

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, alert models.Alert) error {
	telemetry.Logger.Warn("Alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", string(alert.Severity)),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
	)
	return nil
}
