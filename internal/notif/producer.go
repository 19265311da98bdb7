package notif

import (
	"context"

	"github.com/IBM/sarama"

	"gocampus/internal/config"
)

// KafkaProducer is a synchronous sarama producer.
type KafkaProducer struct {
	sync sarama.SyncProducer
}

func NewKafkaProducer(cfg *config.Config) (*KafkaProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.Kafka.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = true
	sc.Producer.Return.Successes = true
	sc.Net.MaxOpenRequests = 1

	sync, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return nil, err
	}
	return NewKafkaProducerFrom(sync), nil
}

// NewKafkaProducerFrom wraps an existing producer, e.g. a sarama mock.
func NewKafkaProducerFrom(sync sarama.SyncProducer) *KafkaProducer {
	return &KafkaProducer{sync: sync}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var hs []sarama.RecordHeader
	for k, v := range headers {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
	_, _, err := p.sync.SendMessage(msg)
	return err
}

func (p *KafkaProducer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
