// Package async provides the cancelable, observable result type the
// rest of the client is built on, plus the cooperative cancellation
// token threaded through every long-running operation.
//
// A Result[T] moves monotonically through Pending, InProgress, and
// exactly one of Succeeded, Failed, or Canceled. Subscribers are
// notified synchronously on every transition and receive immutable
// snapshots. Operations compose through Chain, which folds a nested
// result's terminal state and progress into its parent, and Convert,
// which derives a read-only mapped view of an existing result.
//
// Cancellation is cooperative: Token.Cancel sets a single-use flag and
// wakes registered waiters, but never interrupts work already handed to
// a collaborator. Operation bodies are expected to re-check the token
// after each suspension point and abort without further side effects
// once it is set.
package async
