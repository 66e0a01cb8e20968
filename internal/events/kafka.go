package events

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"govdash/internal/domain/topic"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// originField marks which instance published an envelope
const originField = "origin"

// BinaryPublisher is the part of the Kafka producer the sink needs
type BinaryPublisher interface {
	PublishBinary(ctx context.Context, topic string, key, value []byte) error
}

// KafkaSink forwards events to Kafka as protobuf Struct envelopes
type KafkaSink struct {
	producer BinaryPublisher
	topic    string
	origin   string
	log      *logger.Logger
}

// NewKafkaSink creates a sink publishing to topic. origin identifies this
// process so a Relay can skip its own envelopes.
func NewKafkaSink(producer BinaryPublisher, topic, origin string, log *logger.Logger) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		origin:   origin,
		log:      log.With("component", "kafka_sink"),
	}
}

// Dispatch encodes and publishes e. Failures are logged, never returned.
func (s *KafkaSink) Dispatch(ctx context.Context, e Event) {
	data, err := Encode(e, s.origin)
	if err != nil {
		s.log.Errorw("Failed to encode event", "type", e.Type, "error", err)
		return
	}

	if err := s.producer.PublishBinary(ctx, s.topic, []byte(partitionKey(e)), data); err != nil {
		s.log.Errorw("Failed to publish event", "type", e.Type, "topic", s.topic, "error", err)
	}
}

// partitionKey keeps events of one session or network in order
func partitionKey(e Event) string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.Network
}

// Encode serializes e into a protobuf Struct envelope
func Encode(e Event, origin string) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "flatten event")
	}
	fields[originField] = origin

	envelope, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "build envelope")
	}

	data, err := proto.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "marshal protobuf")
	}
	return data, nil
}

// Decode parses an envelope produced by Encode. Payload comes back as
// generic JSON values.
func Decode(data []byte) (Event, string, error) {
	var envelope structpb.Struct
	if err := proto.Unmarshal(data, &envelope); err != nil {
		return Event{}, "", errors.Wrap(err, "unmarshal protobuf")
	}

	fields := envelope.AsMap()
	origin, _ := fields[originField].(string)
	delete(fields, originField)

	raw, err := json.Marshal(fields)
	if err != nil {
		return Event{}, "", errors.Wrap(err, "marshal envelope fields")
	}

	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, "", errors.Wrap(err, "unmarshal event")
	}
	if e.Type == "" {
		return Event{}, "", errors.Wrap(errors.ErrInvalidInput, "envelope without type")
	}
	if err := typePayload(&e); err != nil {
		return Event{}, "", err
	}
	return e, origin, nil
}

// typePayload restores the concrete payload types the topics store expects
func typePayload(e *Event) error {
	var target interface{}
	switch e.Type {
	case TopicsSuccess:
		target = &topic.Topics{}
	case TopicsFailure:
		target = &FailurePayload{}
	default:
		return nil
	}

	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s payload", e.Type)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errors.Wrapf(err, "unmarshal %s payload", e.Type)
	}

	switch v := target.(type) {
	case *topic.Topics:
		e.Payload = *v
	case *FailurePayload:
		e.Payload = *v
	}
	return nil
}

// Relay re-dispatches envelopes published by other instances
type Relay struct {
	origin string
	target Dispatcher
	log    *logger.Logger
}

func NewRelay(origin string, target Dispatcher, log *logger.Logger) *Relay {
	return &Relay{
		origin: origin,
		target: target,
		log:    log.With("component", "event_relay"),
	}
}

// Handle matches the Kafka consumer's message handler signature
func (r *Relay) Handle(ctx context.Context, msg kafkago.Message) error {
	e, origin, err := Decode(msg.Value)
	if err != nil {
		return err
	}
	if origin == r.origin {
		return nil
	}

	r.log.Debugw("Relaying event", "type", e.Type, "origin", origin)
	e.Relayed = true
	r.target.Dispatch(ctx, e)
	return nil
}
