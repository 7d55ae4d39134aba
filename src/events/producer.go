// backend/src/events/producer.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/username/tradereview/backend/src/models"
)

const EventAnalysisCompleted = "ANALYSIS_COMPLETED"

// Publisher announces finished analyses to downstream consumers.
type Publisher interface {
	PublishAnalysisCompleted(ctx context.Context, report *models.AnalysisReport) error
}

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes analysis events to Kafka.
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer, topic: topic}
}

// PublishAnalysisCompleted publishes the headline numbers of a report keyed by its id.
func (p *Producer) PublishAnalysisCompleted(ctx context.Context, report *models.AnalysisReport) error {
	var instruments []string
	if report.Dataset != nil {
		instruments = report.Dataset.InstrumentIDs()
	}
	event := models.AnalysisEvent{
		EventType:       EventAnalysisCompleted,
		AnalysisID:      report.ID,
		Source:          report.Source,
		Instruments:     instruments,
		CompletedTrades: report.Summary.TotalCompletedTrades,
		WinRate:         report.Summary.WinRate.StringFixed(2),
		TotalPnL:        report.Summary.TotalPnL.String(),
		Timestamp:       time.Now().UTC(),
	}
	return p.publish(ctx, report.ID, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.AnalysisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
