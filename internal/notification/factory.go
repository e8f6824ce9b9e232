package notification

import (
	"context"
	"fmt"

	"ms-promotion/internal/config"
	"ms-promotion/internal/kafka"
	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"
)

type Notifier interface {
	SendPromotionActivated(ctx context.Context, user models.User, event models.Event) error
	SendPromotionExpired(ctx context.Context, event models.Event) error
	PublishOrderCreated(ctx context.Context, order models.PromotionOrder) error
}

// FromConfig publishes through Kafka when enabled and only logs otherwise. Topic creation
// failures only warn; the writer auto-creates topics on first use. The returned func closes
// the producer.
func FromConfig(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) (Notifier, func()) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, notifications will only be logged")
		return LogNotifier{Log: log}, func() {}
	}

	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, cfg.Topics.All(), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	producer := kafka.NewProducer(cfg.Brokers, log)
	log.Info("KAFKA", "Kafka producer initialized successfully")

	return NewKafkaNotifier(producer, cfg.Topics, log), func() {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}
