package http

import "fmt"

// StatusError is returned by Publish for non 2xx relay answers when StrictStatus is on
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay answered status %d: %s", e.StatusCode, e.Body)
}
