// Package watcher turns filesystem notifications into change batches.
//
// FSSource subscribes to the watch set through fsnotify, registering
// directory roots recursively, and delivers filtered RawEvents. Debouncer
// folds bursts of RawEvents into a single ChangeBatch once the quiet window
// has elapsed. Filter decides which paths are interesting, combining ignore
// globs, an extension allowlist and the project .gitignore.
package watcher
