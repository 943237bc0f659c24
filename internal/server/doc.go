// Package server implements the HTTP and WebSocket front of the relay.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, uploads and HTTP handlers. Relay
// semantics live in the lifecycle, session, presence and broadcast packages;
// this package adapts them to gorilla/websocket connections.
package server
