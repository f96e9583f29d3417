package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionManager owns the broker connection for one client instance.
// There is no reconnection: once the connection drops, the manager reports
// disconnected and every subsequent operation fails until the client is
// rebuilt.
type ConnectionManager struct {
	url         string
	config      *amqp.Config
	dialTimeout time.Duration
	logger      *slog.Logger

	mu          sync.RWMutex
	conn        *amqp.Connection
	notifyClose chan *amqp.Error
	isConnected bool
	done        chan struct{}
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithAMQPConfig passes a socket/auth configuration through to the dial
func WithAMQPConfig(config amqp.Config) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.config = &config
	}
}

// WithDialTimeout sets the connection establishment timeout
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:         url,
		dialTimeout: 30 * time.Second,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect establishes the connection
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.isConnected {
		return nil
	}

	connCtx, cancel := context.WithTimeout(ctx, cm.dialTimeout)
	defer cancel()

	connChan := make(chan *amqp.Connection, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := cm.dial()
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case conn := <-connChan:
		cm.conn = conn
		cm.isConnected = true
		cm.notifyClose = make(chan *amqp.Error)
		cm.conn.NotifyClose(cm.notifyClose)

		cm.logger.Info("connected to RabbitMQ",
			"url", SanitizeURL(cm.url))

		go cm.monitorClose()

		return nil

	case err := <-errChan:
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
		}

	case <-connCtx.Done():
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       ErrConnectionTimeout,
			Timestamp: time.Now(),
		}
	}
}

func (cm *ConnectionManager) dial() (*amqp.Connection, error) {
	if cm.config != nil {
		return amqp.DialConfig(cm.url, *cm.config)
	}
	return amqp.Dial(cm.url)
}

// GetConnection returns the current connection
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}

	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	return cm.conn, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected && cm.conn != nil && !cm.conn.IsClosed()
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.isConnected {
		return nil
	}

	close(cm.done)
	cm.isConnected = false

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}

	return nil
}

// monitorClose watches for an unexpected connection close and marks the
// manager disconnected. Recovery is the application's concern.
func (cm *ConnectionManager) monitorClose() {
	select {
	case err := <-cm.notifyClose:
		if err != nil {
			cm.logger.Error("connection closed", "error", err)
		}

		cm.mu.Lock()
		cm.isConnected = false
		cm.conn = nil
		cm.mu.Unlock()

	case <-cm.done:
		cm.logger.Info("connection manager shutting down")
	}
}
