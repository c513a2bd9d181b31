// Package service is the only write entry point of the waiter board.
//
// It loads settings, applies domain rules from domain/waiter, persists each
// mutation together with its audit entry, and tells notifiers (the outbox,
// the websocket hub) what changed. Transports in api/ call into it and never
// touch the store directly.
package service
