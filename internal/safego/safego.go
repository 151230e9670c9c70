// Package safego provides a panic-recovering goroutine launcher for fire-and-forget work.
package safego

import "log/slog"

// Go launches fn in a new goroutine under the given task name. If fn panics,
// the panic is recovered and logged rather than crashing the process. All
// fire-and-forget goroutines in the audit pipeline (mirroring retries,
// unusual-login checks, archive uploads) must go through this so a panic in a
// best-effort path can never take down the request that triggered it.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background task", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}
