// Package eventsink optionally republishes every Mined event to Kafka,
// for consumers outside bpd's own RPC protocol (e.g. an analytics
// pipeline). Adapted from the teacher's
// datasync/chaindatafetcher/event/kafka producer setup, trimmed to the
// publish side only: bpd never consumes from Kafka.
package eventsink

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/blockproc"
	"github.com/bp-node/bpd/internal/log"
)

type minedMessage struct {
	Txid string `json:"txid"`
}

// Sink publishes one JSON message per Mined event to a Kafka topic.
type Sink struct {
	producer sarama.AsyncProducer
	topic    string
	log      *log.Logger
}

// New connects an async Kafka producer to brokers, publishing to
// topic.
func New(brokers []string, topic string) (*Sink, error) {
	clientSuffix, err := uuid.GenerateUUID()
	if err != nil {
		return nil, errors.Wrap(err, "eventsink: generate client id")
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Return.Errors = true
	config.ClientID = "bpd-" + clientSuffix

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "eventsink: start kafka producer")
	}

	s := &Sink{producer: producer, topic: topic, log: log.NewModuleLogger(log.ModuleEventSink)}
	go s.logProducerErrors()
	return s, nil
}

func (s *Sink) logProducerErrors() {
	for perr := range s.producer.Errors() {
		s.log.Warn("kafka publish failed", "err", perr.Err)
	}
}

// Run republishes every event received on minedRx until the channel
// closes, then closes the underlying producer.
func (s *Sink) Run(minedRx <-chan blockproc.MinedEvent) {
	defer s.producer.Close()
	for ev := range minedRx {
		s.publish(ev)
	}
}

func (s *Sink) publish(ev blockproc.MinedEvent) {
	data, err := json.Marshal(minedMessage{Txid: ev.Txid.String()})
	if err != nil {
		s.log.Warn("marshal mined event failed", "err", err)
		return
	}
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(ev.Txid.String()),
		Value: sarama.ByteEncoder(data),
	}
}
