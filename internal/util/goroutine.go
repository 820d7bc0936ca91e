package util

import (
	"fmt"

	"github.com/real-rm/chatsocket/internal/metrics"
	"github.com/real-rm/golog"
)

// SafeGo launches a goroutine with panic recovery.
// If the goroutine panics, the panic is recovered, logged, and the panic metric is incremented.
// This prevents a single goroutine panic from crashing the host application.
func SafeGo(logger *golog.Logger, component string, fn func()) {
	go func() {
		defer Recover(logger, component)
		fn()
	}()
}

// Recover logs and counts a panic. It must be called directly by a deferred statement.
//
// Example:
//
//	defer util.Recover(logger, "status_listener")
func Recover(logger *golog.Logger, component string, fields ...interface{}) {
	if r := recover(); r != nil {
		allFields := []interface{}{"component", component, "panic", fmt.Sprintf("%v", r)}
		allFields = append(allFields, fields...)
		logger.Error("Panic recovered", allFields...)
		metrics.ListenerPanics.WithLabelValues(component).Inc()
	}
}
