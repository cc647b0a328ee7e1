package notify

import (
	"context"

	"go.uber.org/zap"
)

// NoopBus logs events to zap instead of delivering them.
// Use in development or when Redis is not configured.
type NoopBus struct {
	logger *zap.Logger
}

// NewNoopBus creates a NoopBus backed by the given logger.
func NewNoopBus(logger *zap.Logger) *NoopBus {
	return &NoopBus{logger: logger}
}

// Publish logs the event and returns.
func (b *NoopBus) Publish(_ context.Context, event string, payload map[string]string) {
	b.logger.Info("event (noop — not published)",
		zap.String("event", event),
		zap.Any("payload", payload),
	)
}
