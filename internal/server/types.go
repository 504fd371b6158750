// Package server defines shared errors and helpers that are reused across
// client and hub logic.
package server

import (
	"errors"
	"strings"
)

var (
	errClientClosed   = errors.New("client connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
