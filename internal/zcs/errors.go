package zcs

import (
	"fmt"
	"strings"
)

// AuthError reports that the vendor cloud rejected the client credentials.
// Callers must treat it as fatal and trigger reauthentication; every other
// failure kind is recoverable.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// APIError reports a vendor-side command failure: the exchange completed but
// the cloud declined the command.
type APIError struct {
	Command  string
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("command %s failed", e.Command)
	}
	return fmt.Sprintf("command %s failed: %s", e.Command, strings.Join(e.Messages, "; "))
}
