// Package safego provides a panic-recovering goroutine launcher for the
// service's background work: the metrics side server, the database pool
// collector, and the main listener.
package safego

import "log/slog"

// Go launches fn in a new goroutine named name. A panic in fn is recovered and
// logged with the name instead of crashing the process.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "goroutine", name, "panic", r)
			}
		}()
		fn()
	}()
}
