package eventsvc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

const paymentRecordedEvent = "fees.payment_recorded"

// Writer is the subset of *kafka.Writer used to publish.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
}

var _ fees.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher publishes to the configured topic. Messages are keyed by student,
// so the events of a student stay ordered.
func NewKafkaPublisher(conf *core.Config) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(conf.Kafka.Brokers...),
		Topic:        conf.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishPaymentRecorded(ctx context.Context, event fees.PaymentRecorded) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	msg := kafka.Message{
		Key:     []byte(event.StudentID),
		Value:   value,
		Headers: []kafka.Header{{Key: "event", Value: []byte(paymentRecordedEvent)}},
		Time:    event.RecordedAt,
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msg), "writing kafka message")
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct {
	logger core.Logger
}

var _ fees.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishPaymentRecorded(_ context.Context, event fees.PaymentRecorded) error {
	p.logger.Debug(paymentRecordedEvent, event)
	return nil
}
