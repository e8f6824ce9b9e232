package utils

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorCode is the machine readable reason of a failed promotion request.
type ErrorCode string

const (
	CodeUnauthorized   ErrorCode = "unauthorized"
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeNotFound       ErrorCode = "not_found"
	CodeNotPromotable  ErrorCode = "not_promotable"
	CodeUnavailable    ErrorCode = "unavailable"
	CodeInternal       ErrorCode = "internal"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Code      ErrorCode   `json:"code,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse builds a failure envelope. Only CodeUnavailable is marked retryable; a checkout
// rejected for any other reason fails the same way when repeated.
func ErrorResponse(code ErrorCode, message, detail string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		Detail:    detail,
		Retryable: code == CodeUnavailable,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
