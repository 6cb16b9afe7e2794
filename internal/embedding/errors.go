package embedding

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a provider failure so the tool layer can render a
// user-readable message without inspecting provider-specific errors.
type Code string

const (
	CodeAuth       Code = "embedding-auth"
	CodeRateLimit  Code = "embedding-rate-limit"
	CodeModel      Code = "embedding-model"
	CodeInput      Code = "embedding-input"
	CodeServer     Code = "embedding-server"
	CodePermission Code = "embedding-permission"
	CodeConfig     Code = "embedding-config"
	CodeUnknown    Code = "embedding-unknown"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Code    Code
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a classified provider error.
func NewProviderError(code Code, format string, args ...interface{}) *ProviderError {
	return &ProviderError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapHTTPStatus classifies err by the HTTP status the provider returned.
func WrapHTTPStatus(status int, err error) *ProviderError {
	return &ProviderError{
		Code:    codeForStatus(status),
		Message: fmt.Sprintf("provider returned HTTP %d", status),
		Err:     err,
	}
}

func codeForStatus(status int) Code {
	switch {
	case status == 401:
		return CodeAuth
	case status == 403:
		return CodePermission
	case status == 404:
		return CodeModel
	case status == 429:
		return CodeRateLimit
	case status == 400 || status == 422:
		return CodeInput
	case status >= 500:
		return CodeServer
	default:
		return CodeUnknown
	}
}

// CodeOf returns the classification of err, or CodeUnknown when err is not a
// ProviderError.
func CodeOf(err error) Code {
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// UserMessage renders a short message suitable for tool responses.
func UserMessage(err error) string {
	switch CodeOf(err) {
	case CodeAuth:
		return "Embedding provider rejected the API key"
	case CodePermission:
		return "Embedding provider denied access to the model"
	case CodeModel:
		return "Embedding model not found"
	case CodeRateLimit:
		return "Embedding provider rate limit exceeded, retry later"
	case CodeInput:
		return "Embedding input was rejected by the provider"
	case CodeServer:
		return "Embedding provider is unavailable"
	case CodeConfig:
		return "Embedding provider is misconfigured"
	default:
		return "Embedding generation failed"
	}
}
