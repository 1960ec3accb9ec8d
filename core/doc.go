// Package core contains the canonical webhook delivery contracts,
// entities, and orchestration logic: the endpoint registry, event
// triggering, the dispatch scheduler, and retention. Store adapters
// must depend on this package; core must not depend on storage- or
// transport-specific adapters.
//
// Delivery processing follows a single state machine:
// pending -> retrying* -> delivered|failed. Queue entries are claimed
// (removed) atomically before dispatch, which keeps pickup at-most-once
// per entry while the protocol as a whole stays at-least-once.
package core
