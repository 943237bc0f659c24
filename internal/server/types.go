// Package server defines shared payload types and utility helpers that
// are reused across client, hub and HTTP handler logic.
package server

import "strings"

// uploadResponse is the JSON body returned by the upload handler.
type uploadResponse struct {
	Success  bool   `json:"success"`
	FileURL  string `json:"fileUrl,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Message  string `json:"message,omitempty"`
}

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
