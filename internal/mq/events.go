package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// AlertEvent is published for every committed reading outside its
// threshold range.
type AlertEvent struct {
	EventID    string  `json:"event_id"`
	SensorType string  `json:"sensor_type"`
	Value      float64 `json:"value"`
	Timestamp  int64   `json:"timestamp"`
	MinValue   float64 `json:"min_value"`
	MaxValue   float64 `json:"max_value"`
	Reason     string  `json:"reason"`
	Source     string  `json:"source"`
}

// NewAlertEvent builds the event for an alerting reading.
func NewAlertEvent(reading model.Reading, threshold model.Threshold, reason, source string) AlertEvent {
	return AlertEvent{
		EventID:    uuid.NewString(),
		SensorType: reading.SensorType,
		Value:      reading.Value,
		Timestamp:  reading.Timestamp,
		MinValue:   threshold.MinValue,
		MaxValue:   threshold.MaxValue,
		Reason:     reason,
		Source:     source,
	}
}

func (e AlertEvent) encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return body, nil
}

// EventPublisher delivers alert events to a broker. Publishing is best
// effort: callers log failures and carry on.
type EventPublisher interface {
	PublishAlert(ctx context.Context, event AlertEvent) error
	Close() error
}

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishAlert(context.Context, AlertEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
