package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink writes events to a single topic, keyed by run.
type KafkaSink struct {
	w *kafka.Writer
}

func NewKafkaSink(brokers, topic string) (*KafkaSink, error) {
	if brokers == "" {
		return nil, errors.New("kafka report backend needs KAFKA_BROKERS")
	}
	if topic == "" {
		topic = "finaljob.events"
	}
	return &KafkaSink{w: &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

func (k *KafkaSink) Publish(ctx context.Context, evt Event) error {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{Key: []byte(evt.Run), Value: data})
}

func (k *KafkaSink) Close() error { return k.w.Close() }
