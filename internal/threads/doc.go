// Package threads keeps the live message-thread collection in sync
// with the service.
//
// Collection is the shared thread set plus the activation flag the UI
// toggles while its thread view is visible. SyncLoop is a perpetual
// state machine over it: fetch, then back off with an additive capped
// delay while the collection is watched, or suspend on the activation
// signal while it is not. Explicit update requests cancel any pending
// wait so a just-sent message is reflected immediately. The loop owns
// one cancellation token per cycle and never has more than one fetch
// outstanding.
package threads
