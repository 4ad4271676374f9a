// Package dashboard provides the embedded preview page for ntpnews.
//
// The page renders the news feed from the /api/sse stream and drives the
// feed selector, the opt-in toggle and the refresh banner through
// /api/actions. It is compiled into the binary, so no asset files need to
// be deployed.
//
// The server package serves it at the root path ("/") with the configured
// title substituted in.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the preview page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Preview page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
