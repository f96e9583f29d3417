// Package rabbitmq provides the low-level RabbitMQ plumbing for warren:
// connection management and the single channel a client drives.
//
// This package contains no pattern logic. It owns the live broker session and
// exposes the declare/publish/consume/ack primitives the pattern layer builds
// on. Connection recovery is deliberately absent: a dropped connection is
// logged and surfaced through the next failing operation.
package rabbitmq
