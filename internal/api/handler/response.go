package handler

import "github.com/mindnest/auth-service/internal/core/domain"

// Response is the envelope shared by every JSON endpoint.
type Response struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
	// Error carries the internal cause in development only.
	Error string `json:"error,omitempty"`
}

func ok(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}
