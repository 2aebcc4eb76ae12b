// Package server implements the channel layer and HTTP surface of the chat
// relay: WebSocket client pumps, the hub event loop that drives the chat
// engine, configuration, origin control, rate limiting, routing, and metrics.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
