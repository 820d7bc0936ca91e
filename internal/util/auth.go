package util

import "github.com/real-rm/chatsocket/internal/constants"

// BearerHeader formats a token as an Authorization header value
func BearerHeader(token string) string {
	return constants.BearerPrefix + token
}
