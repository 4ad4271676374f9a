// Package server exposes the news state and actions over HTTP.
//
// This package is internal and handles all HTTP concerns:
//
//   - REST API: the state snapshot at "/api/state" and the widget's peek
//     item at "/api/widget"
//   - Server-Sent Events: field-level state changes at "/api/sse"
//   - Actions: "POST /api/actions/{name}" with JSON arguments
//   - WebSocket: "/ws" carries subscriptions, actions and their results
//   - Operations: "/metrics" and "/healthz"
//
// Streaming clients read from coalescing subscriptions, so a slow client
// skips intermediate states instead of delaying the store.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
