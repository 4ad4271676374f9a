// Package ntpnews serves the news section of a new tab page: an observable
// state store, an action dispatcher that drives feed loading against a news
// backend, and the compact peek widget.
//
// # Quick Start
//
//	ctrl := mock.New(mock.DefaultFixture())
//	page, _ := ntpnews.New(ntpnews.WithController(ctrl))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	page.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Page uses the functional options pattern for configuration:
//
//	page, err := ntpnews.New(
//	    ntpnews.WithController(ctrl),
//	    ntpnews.WithPort(9090),
//	    ntpnews.WithLocalStorage(fileStorage, true),
//	    ntpnews.WithPeekMaxAge(30 * time.Minute),
//	    ntpnews.WithStateCallback(func(s news.State) { ... }),
//	)
//
// The config package builds the same options from a YAML or TOML file.
//
// # Architecture
//
//   - store: generic observable store with projections
//   - news: state model, dispatcher, feed loader, peek widget
//   - backend: the news service contract; backend/mock serves fixtures
//   - internal/remote: HTTP news service client with polling
//   - internal/discovery: feed discovery in HTML pages
//   - internal/prefs: memory and file storages
//   - internal/server: REST, Server-Sent Events and WebSocket endpoints
//   - internal/metrics: Prometheus collectors
//   - dashboard: the embedded preview page served at "/"
//
// The internal packages are not part of the public API and may change
// without notice.
package ntpnews
