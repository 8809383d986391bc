// Package app provides the orchestration layer for the Finch application.
//
// # Overview
//
// This package wires together configuration, the service client, the
// local data store, the photo cache, the thread sync loop, the calendar
// poller, the session coordinator, and the UI into a running
// application. It contains no business logic of its own.
//
// # Startup Sequence
//
//  1. Load configuration (service endpoint, data dir, cadences)
//  2. Load user preferences (theme, last username)
//  3. Build the service client and the on-disk store
//  4. Build the photo cache over the store
//  5. Build the thread collection, sync loop, and calendar poller
//  6. Build the session coordinator over the above
//  7. Attach the avatar prefetch watcher to the thread collection
//  8. Attempt to restore a stored session, then hand off to the UI
//
// # Shutdown
//
// Context cancellation (SIGINT/SIGTERM from main) stops the Bubble Tea
// program, the calendar poller, and the sync loop. The photo cache is
// drained last so pending writes land on disk.
//
// # Component Ownership
//
// Run owns every component it builds and nothing outlives it. The UI
// borrows references but never closes or resets anything itself; session
// lifecycle changes always go through the coordinator.
package app
