package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/cycle"
	"github.com/refset/churn-decision-agent/internal/decision"
)

// Producer publishes action outcomes and cycle summaries to Kafka
type Producer struct {
	outcomesWriter *kafka.Writer
	cyclesWriter   *kafka.Writer
	log            *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, outcomesTopic, cyclesTopic string, log *zap.Logger) *Producer {
	return &Producer{
		outcomesWriter: newWriter(brokers, outcomesTopic),
		cyclesWriter:   newWriter(brokers, cyclesTopic),
		log:            log.Named("kafka"),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// outcomeMessage keys outcomes by customer so one customer's history stays
// in a single partition.
func outcomeMessage(o decision.ActionOutcome) (kafka.Message, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(o.CustomerID),
		Value: data,
		Time:  o.CreatedAt,
		Headers: []kafka.Header{
			{Key: "cycle_id", Value: []byte(o.CycleID)},
			{Key: "action_type", Value: []byte(o.ActionType)},
		},
	}, nil
}

func cycleMessage(r *cycle.Result) (kafka.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(r.CycleID),
		Value: data,
		Time:  r.CycleEnd,
	}, nil
}

// PublishOutcome sends an action outcome to the outcomes topic
func (p *Producer) PublishOutcome(ctx context.Context, o decision.ActionOutcome) error {
	msg, err := outcomeMessage(o)
	if err != nil {
		return err
	}
	if err := p.outcomesWriter.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.log.Debug("Sent outcome to Kafka", zap.String("outcome_id", o.ID), zap.String("customer_id", o.CustomerID))
	return nil
}

// PublishCycle sends a finished cycle summary to the cycles topic
func (p *Producer) PublishCycle(ctx context.Context, r *cycle.Result) error {
	msg, err := cycleMessage(r)
	if err != nil {
		return err
	}
	if err := p.cyclesWriter.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.log.Info("Sent cycle summary to Kafka", zap.String("cycle_id", r.CycleID))
	return nil
}

// Close closes the Kafka writers
func (p *Producer) Close() error {
	return errors.Join(p.outcomesWriter.Close(), p.cyclesWriter.Close())
}
