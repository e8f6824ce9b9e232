package notification

import (
	"context"
	"fmt"
	"time"

	"ms-promotion/internal/config"
	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

// KafkaNotifier hands promotion notices to the mail worker through Kafka. Messages are keyed by
// event id.
type KafkaNotifier struct {
	publisher Publisher
	topics    config.TopicConfig
	log       *logger.Logger
	now       func() time.Time
}

func NewKafkaNotifier(publisher Publisher, topics config.TopicConfig, log *logger.Logger) *KafkaNotifier {
	if log == nil {
		log = logger.New(nil)
	}
	return &KafkaNotifier{publisher: publisher, topics: topics, log: log, now: time.Now}
}

func (n *KafkaNotifier) SendPromotionActivated(ctx context.Context, user models.User, event models.Event) error {
	msg := models.PromotionNotification{
		Type:         models.PromotionStatusActivated,
		UserID:       user.ID,
		Email:        user.Email,
		Username:     user.Username,
		EventID:      event.ID,
		EventTitle:   event.Title,
		PremiumUntil: event.PremiumUntil,
		Timestamp:    n.now().UTC(),
	}
	if err := n.publisher.PublishJSON(ctx, n.topics.PromotionActivated, event.ID, msg); err != nil {
		return fmt.Errorf("send activation notice: %w", err)
	}
	n.log.Info("NOTIFY", fmt.Sprintf("Activation notice queued for %s (event %s)", user.Email, event.ID))
	return nil
}

func (n *KafkaNotifier) SendPromotionExpired(ctx context.Context, event models.Event) error {
	msg := models.PromotionNotification{
		Type:       models.PromotionStatusExpired,
		UserID:     event.OwnerID,
		EventID:    event.ID,
		EventTitle: event.Title,
		Timestamp:  n.now().UTC(),
	}
	if err := n.publisher.PublishJSON(ctx, n.topics.PromotionExpired, event.ID, msg); err != nil {
		return fmt.Errorf("send expiry notice: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) PublishOrderCreated(ctx context.Context, order models.PromotionOrder) error {
	msg := models.OrderCreatedMessage{
		OrderID:       order.ID,
		EventID:       order.EventID,
		UserID:        order.UserID,
		Amount:        order.Amount,
		Currency:      order.Currency,
		PromotionDays: order.PromotionDays,
		CreatedAt:     order.CreatedAt,
	}
	if err := n.publisher.PublishJSON(ctx, n.topics.OrderCreated, order.EventID, msg); err != nil {
		return fmt.Errorf("publish order created: %w", err)
	}
	return nil
}

// LogNotifier only logs. Used when Kafka is disabled.
type LogNotifier struct {
	Log *logger.Logger
}

func (n LogNotifier) SendPromotionActivated(_ context.Context, user models.User, event models.Event) error {
	n.Log.Info("NOTIFY", fmt.Sprintf("Kafka disabled, skipping activation notice for %s (event %s)", user.Email, event.ID))
	return nil
}

func (n LogNotifier) SendPromotionExpired(_ context.Context, event models.Event) error {
	n.Log.Info("NOTIFY", fmt.Sprintf("Kafka disabled, skipping expiry notice for event %s", event.ID))
	return nil
}

func (n LogNotifier) PublishOrderCreated(context.Context, models.PromotionOrder) error {
	return nil
}
