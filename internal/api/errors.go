package api

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when the refresh token itself is rejected or
// missing. The session has been torn down and the caller must log in again.
var ErrSessionExpired = errors.New("session expired")

// Error is a business error decoded from a failed response envelope.
// Its message is displayable to the player as-is.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsAPIError reports whether err carries a backend business error and
// returns it when so
func IsAPIError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
