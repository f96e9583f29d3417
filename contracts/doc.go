// Package contracts defines the wire message type shared by all messaging
// patterns and the codec that moves application values to and from broker
// payloads.
//
// The codec is deliberately infallible: Encode falls back from JSON to a
// plain textual coercion, and Decode falls back from JSON to the raw text.
// Malformed payloads degrade to strings instead of aborting message flow.
package contracts
