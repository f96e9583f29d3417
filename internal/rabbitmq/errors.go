package rabbitmq

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Connection errors
	ErrConnectionClosed   = errors.New("rabbitmq: connection is closed")
	ErrConnectionNotReady = errors.New("rabbitmq: connection not ready")
	ErrConnectionTimeout  = errors.New("rabbitmq: connection timeout")

	// Channel errors
	ErrChannelClosed = errors.New("rabbitmq: channel is closed")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError represents a channel-related error
type ChannelError struct {
	Op        string    // Operation that failed
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("rabbitmq channel error: %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// PublishError represents a publish operation error
type PublishError struct {
	Exchange   string    // Target exchange
	RoutingKey string    // Routing key used
	Err        error     // Underlying error
	Timestamp  time.Time // When the error occurred
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq publish error: failed to publish to %s/%s: %v",
		e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// SanitizeURL removes credentials from connection URLs before logging
func SanitizeURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "***" + url[len(url)-10:]
	}
	return "***"
}
