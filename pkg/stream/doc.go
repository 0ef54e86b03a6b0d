// Package stream provides a small push-based stream abstraction and the
// bridge machinery for converting callback-registration APIs into streams.
//
// A Stream delivers zero or more values to a Subscriber, optionally followed
// by exactly one terminal signal (Done or Err). Streams come in two flavours:
//
//   - Cold streams (built with New) perform their registration work once per
//     subscription. Unsubscribing forwards the deregistration handle the
//     underlying source returned, if it returned one.
//
//   - Hot singles (built with NewSingle) represent work that was already
//     triggered when the stream was created. Every subscriber, including one
//     that attaches after the work finished, receives the single outcome.
//     Unsubscribing only detaches locally; it never aborts the work.
//
// Values are delivered in exactly the order the source produced them. The
// bridge never reorders, drops, or coalesces. If unsubscription races with an
// in-flight delivery, at most one more value may reach the subscriber after
// the CancelFunc returns.
package stream
