// Package api defines the callback-based engine boundary that the brook
// facade wraps.
//
// The Engine interface mirrors an event-sourced state-management runtime:
// events carry tags, derived-state subjects ("fish") fold matching events
// into state, and every observation is delivered through callbacks. The
// facade in the root package converts each of these callback operations
// into a stream; this package stays stream-free on purpose so that any
// engine implementation can be wrapped.
package api
