// Package prefs provides the key/value storage used to persist small pieces
// of UI preference state between sessions.
//
// Two scopes mirror the browser's web storage:
//
//   - [MemoryStorage]: session scope, lost when the process exits
//   - [FileStorage]: local scope, one JSON object on disk
//
// Values are opaque strings; callers encode structured values (usually as
// JSON) themselves. Both implementations are safe for concurrent use.
package prefs
