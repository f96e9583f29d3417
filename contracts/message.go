package contracts

import (
	"time"

	json "github.com/goccy/go-json"
)

// Message is the decoded form of a broker delivery. Payload holds the
// decoded body; the remaining fields are copied verbatim from the delivery
// metadata.
type Message struct {
	Payload       any
	Body          []byte
	CorrelationID string
	ReplyTo       string
	RoutingKey    string
	Exchange      string
	DeliveryTag   uint64
	Redelivered   bool
	ContentType   string
	Timestamp     time.Time
}

// Scan unmarshals the message payload into dst, which must be a pointer.
// Unlike the codec itself, Scan reports errors: callers asking for a typed
// view opt back into strict decoding.
func (m *Message) Scan(dst any) error {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
