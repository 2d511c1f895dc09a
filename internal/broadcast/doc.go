// Package broadcast fans device state changes out to connected observers.
//
// Delivery is best-effort and at-most-once: no acknowledgement, no retry,
// no replay for observers that subscribe later. Publish calls are
// serialized and every observer has its own FIFO buffer, so each observer
// sees events in Publish order. An observer whose buffer is full loses
// that event (counted in Dropped); other observers are unaffected.
//
// The hub is transport-agnostic. The HTTP API attaches one Observer per
// websocket connection.
package broadcast
