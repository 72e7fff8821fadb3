package concurrency

import (
	"log/slog"
	"runtime/debug"
)

// SafeGo runs a function in a named goroutine with panic recovery. A panic in
// a transport pump or the store loop must degrade to a logged error, never
// take the process down.
func SafeGo(name string, fn func(), onPanic func(interface{})) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				slog.Error("Panic recovered", "goroutine", name, "panic", r, "stack", string(stack))
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
