// Package remote implements [backend.Controller] against a news service
// reachable over HTTP.
//
// Requests go through a resty client backed by a retrying transport and a
// token bucket limiter. The service has no push channel, so listener events
// come from polling: configuration, publishers, channels and the feed hash
// are probed on an interval and changes are diffed into events. Mutations
// trigger an immediate refresh of the data they affect.
//
// Endpoints used, relative to the base URL:
//
//	GET  /v1/locale
//	GET  /v1/feed
//	GET  /v1/feed/following
//	GET  /v1/feed/channels/{channel}
//	GET  /v1/feed/publishers/{publisherId}
//	GET  /v1/feed/hash
//	GET  /v1/signals
//	GET  /v1/configuration
//	PUT  /v1/configuration
//	GET  /v1/publishers
//	PUT  /v1/publishers/{publisherId}/status
//	POST /v1/publishers/direct
//	GET  /v1/publishers/suggested
//	GET  /v1/channels
//	PUT  /v1/channels/{channel}/locales/{locale}
package remote
