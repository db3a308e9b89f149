// Package kafka fans usage-verification events out to the analytics
// ingestion topic. It is best-effort: publish failures are logged, never
// surfaced to the caller of EntitlementEvaluator.verify/reportUsage.
package kafka

import (
	"encoding/json"

	"github.com/Shopify/sarama"

	"github.com/usagebilling/core/internal/config"
	"github.com/usagebilling/core/internal/logger"
)

// Producer publishes analytics-ingestion events to Kafka.
type Producer struct {
	sync  sarama.SyncProducer
	topic string
	log   *logger.Logger
}

func NewProducer(cfg *config.Configuration, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Retry.Max = 3

	sp, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &Producer{sync: sp, topic: cfg.Kafka.Topic, log: log}, nil
}

// Publish best-effort publishes payload keyed by key. Errors are logged
// and swallowed; analytics ingestion is not ordered or guaranteed (spec §5).
func (p *Producer) Publish(key string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Errorw("marshal analytics event", "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	}

	if _, _, err := p.sync.SendMessage(msg); err != nil {
		p.log.Errorw("publish analytics event", "error", err, "topic", p.topic)
	}
}

func (p *Producer) Close() error {
	return p.sync.Close()
}
