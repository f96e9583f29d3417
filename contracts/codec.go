package contracts

import (
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Encode converts an application value into a broker payload. Raw bytes pass
// through unchanged, structured values serialize to JSON, and anything else
// coerces to its textual form. A failed serialization falls through to the
// textual coercion, so Encode never returns an error.
func Encode(v any) []byte {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return val
	case string:
		return []byte(val)
	}

	if isStructured(v) {
		if data, err := json.Marshal(v); err == nil {
			return data
		}
	}

	return []byte(fmt.Sprint(v))
}

// DecodePayload converts a broker payload back into an application value.
// JSON text yields the parsed value; anything else comes back as the raw
// string. An empty payload decodes to nil. DecodePayload never returns an
// error.
func DecodePayload(body []byte) any {
	if len(body) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

// Decode builds a Message from a delivery, copying its scalar metadata and
// decoding the body. A delivery without a body yields a Message carrying only
// the metadata.
func Decode(d amqp.Delivery) *Message {
	return &Message{
		Payload:       DecodePayload(d.Body),
		Body:          d.Body,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		RoutingKey:    d.RoutingKey,
		Exchange:      d.Exchange,
		DeliveryTag:   d.DeliveryTag,
		Redelivered:   d.Redelivered,
		ContentType:   d.ContentType,
		Timestamp:     d.Timestamp,
	}
}

// isStructured reports whether v is a key-value or sequence shape worth a
// JSON serialization attempt, as opposed to a scalar.
func isStructured(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}
