package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service manages webhook subscriptions and event delivery. Its Publish
// method satisfies notify.Bus, so registry events fan out to registered
// endpoints without the publishers knowing webhooks exist.
type Service struct {
	store      Store
	httpClient *http.Client
	// retryDelays[n] is slept before attempt n+1. Overridable in tests.
	retryDelays []time.Duration
	onMetrics   MetricsRecorder
	logger      *zap.Logger
}

// NewService creates a new webhook Service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger:      logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// Subscribe creates a subscription with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID, req *CreateSubscriptionRequest) (*Subscription, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		UserID: userID,
		URL:    req.URL,
		Events: req.Events,
		Secret: secret,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes a subscription the actor owns.
func (s *Service) Unsubscribe(ctx context.Context, userID, subID uuid.UUID) error {
	sub, err := s.store.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return ErrForbidden
	}
	return s.store.Delete(ctx, subID)
}

// ListByUser returns all subscriptions for a user.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error) {
	return s.store.ListByUser(ctx, userID)
}

// Publish implements notify.Bus: it fans the event out to every matching
// subscription. Delivery runs in the background; the publisher is never
// blocked and never sees delivery errors.
func (s *Service) Publish(ctx context.Context, eventType string, payload map[string]string) {
	subs, err := s.store.ListByEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	for _, sub := range subs {
		// Deliveries outlive the request that triggered them.
		go s.deliver(context.WithoutCancel(ctx), sub, event)
	}
}

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	signature := signPayload(body, sub.Secret)

	for attempt := 1; attempt <= len(s.retryDelays); attempt++ {
		time.Sleep(s.retryDelays[attempt-1])

		success, statusCode, errMsg := s.post(ctx, sub.URL, body, signature)

		delivery := &Delivery{
			SubscriptionID: sub.ID,
			EventType:      event.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.store.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}
		if s.onMetrics != nil {
			s.onMetrics(success)
		}
		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// post performs a single signed HTTP delivery.
func (s *Service) post(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CredAnchor-Signature", signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes the HMAC-SHA256 signature consumers use to
// authenticate deliveries.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
