package util

import (
	"errors"
	"fmt"

	chaterrors "github.com/real-rm/chatsocket/internal/errors"
	"github.com/real-rm/golog"
)

// LogError logs an error with component and operation context.
// A *ChatError anywhere in the chain adds its code, category and
// recoverability so failures can be filtered without parsing messages.
//
// Example:
//
//	LogError(logger, "transport", "dial server", err, "url", url, "attempt", n)
func LogError(logger *golog.Logger, component, operation string, err error, fields ...interface{}) {
	logger.Error(fmt.Sprintf("Failed to %s", operation), errorFields(component, err, fields)...)
}

func errorFields(component string, err error, fields []interface{}) []interface{} {
	allFields := []interface{}{"error", err, "component", component}

	var chatErr *chaterrors.ChatError
	// No else needed: optional operation (plain errors carry no code)
	if errors.As(err, &chatErr) {
		allFields = append(allFields,
			"code", string(chatErr.Code),
			"category", string(chatErr.Category),
			"recoverable", chatErr.Recoverable)
		if chatErr.StatusCode != 0 {
			allFields = append(allFields, "status", chatErr.StatusCode)
		}
	}

	return append(allFields, fields...)
}
