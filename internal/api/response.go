package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Response is the unified envelope format for every JSON endpoint.
type Response struct {
	Result        string      `json:"result"`
	Data          interface{} `json:"data,omitempty"`
	Code          string      `json:"code,omitempty"`
	Message       string      `json:"message,omitempty"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlationId"`
}

// SuccessResponse creates a success response.
func SuccessResponse(data interface{}) *Response {
	return &Response{
		Result:        "ok",
		Data:          data,
		CorrelationID: uuid.NewString(),
	}
}

// ErrorResponse creates an error response.
func ErrorResponse(code, message string, details interface{}) *Response {
	return &Response{
		Result:        "error",
		Code:          code,
		Message:       message,
		Details:       details,
		CorrelationID: uuid.NewString(),
	}
}

// WriteSuccess writes a success response to the HTTP response writer.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	writeResponse(w, http.StatusOK, SuccessResponse(data))
}

// WriteError writes an error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details interface{}) {
	writeResponse(w, statusCode, ErrorResponse(code, message, details))
}

// writeResponse writes a JSON response to the HTTP response writer.
func writeResponse(w http.ResponseWriter, statusCode int, response *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(w, "Internal server error: %v", err)
	}
}
