// Package mcp implements the Model Context Protocol server for localrag.
package mcp

import (
	"context"
	"errors"
	"fmt"

	lrerrors "github.com/localrag/localrag/internal/errors"
)

// MCP error codes. The -32000 range is reserved for implementation-defined
// errors; the rest are standard JSON-RPC codes.
const (
	ErrCodeIndexUnavailable = -32001
	ErrCodeTimeout          = -32003

	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params error.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var lrErr *lrerrors.Error
	if errors.As(err, &lrErr) {
		switch lrErr.Category {
		case lrerrors.CategoryValidation:
			return &MCPError{Code: ErrCodeInvalidParams, Message: lrErr.Message}
		case lrerrors.CategoryInternal:
			return &MCPError{Code: ErrCodeIndexUnavailable, Message: lrErr.Message}
		}
	}

	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}
