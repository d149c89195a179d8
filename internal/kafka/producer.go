package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// TopicBillingEvents единый топик событий биллинга. Ключ сообщения —
// subscription_id, так события одной подписки попадают в одну партицию
// и сохраняют порядок.
const TopicBillingEvents = "billing.events"

// BillingEvent представляет событие биллинга для Kafka
type BillingEvent struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscription_id"`
	UserID         string            `json:"user_id"`
	EventType      string            `json:"event_type"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

type BillingEventProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewBillingEventProducer создает продюсер событий биллинга
func NewBillingEventProducer(brokers []string, cfg *Config, log *logger.Logger) (*BillingEventProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)
	return &BillingEventProducer{
		producer: producer,
		log:      log,
	}, nil
}

// PublishBillingEvent публикует запись журнала биллинга как событие
func (p *BillingEventProducer) PublishBillingEvent(_ context.Context, entry domain.BillingLog) error {
	event := BillingEvent{
		ID:             entry.ID.String(),
		SubscriptionID: entry.SubscriptionID.String(),
		UserID:         entry.UserID.String(),
		EventType:      entry.EventType,
		Amount:         entry.Amount,
		Currency:       entry.Currency,
		Status:         string(entry.Status),
		Metadata:       entry.Metadata,
		Timestamp:      entry.CreatedAt,
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal billing event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: TopicBillingEvents,
		Key:   sarama.StringEncoder(entry.SubscriptionID.String()),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(entry.EventType),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish billing event: %w", err)
	}

	p.log.Debugw("Published billing event", "topic", TopicBillingEvents, "event_type", entry.EventType, "partition", partition, "offset", offset)
	return nil
}

// Close закрывает продюсер
func (p *BillingEventProducer) Close() error {
	return p.producer.Close()
}
