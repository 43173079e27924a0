package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
)

// RequestError is a failed backend call. Status is 0 when no response was
// received (transport failure or timeout).
type RequestError struct {
	Status  int
	Message string
	cause   error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return "backend request failed: " + e.Message
	}
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.cause
}

// AsRequestError extracts the backend failure carried by err, if any.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// ErrAuthRequired is returned before any network call when a protected
// operation has no bearer token.
func ErrAuthRequired() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
}

func newStatusError(status int, body []byte) error {
	return wrapRequestError(&RequestError{Status: status, Message: ExtractMessage(status, body)})
}

func wrapRequestError(reqErr *RequestError) error {
	return pkgerrors.Wrap(codeForStatus(reqErr.Status), reqErr, reqErr.Message).WithDetails(map[string]any{
		"status":  reqErr.Status,
		"message": reqErr.Message,
	})
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	default:
		return pkgerrors.CodeDependency
	}
}

// ExtractMessage derives a human readable message from an error body: the
// JSON "detail" field (string or validation list), then "message" or "error",
// then the raw trimmed text, then the status text.
func ExtractMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))

	var payload map[string]json.RawMessage
	if text != "" && json.Unmarshal([]byte(text), &payload) == nil {
		for _, key := range []string{"detail", "message", "error"} {
			raw, ok := payload[key]
			if !ok {
				continue
			}
			if msg := messageFromRaw(raw); msg != "" {
				return msg
			}
		}
	}

	var quoted string
	if text != "" && json.Unmarshal([]byte(text), &quoted) == nil && strings.TrimSpace(quoted) != "" {
		return strings.TrimSpace(quoted)
	}
	if text != "" {
		return text
	}
	if status == 0 {
		return "request failed"
	}
	if statusText := http.StatusText(status); statusText != "" {
		return statusText
	}
	return fmt.Sprintf("HTTP %d", status)
}

func messageFromRaw(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}

	var list []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if json.Unmarshal(raw, &list) == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			msg := strings.TrimSpace(item.Msg)
			if msg == "" {
				continue
			}
			if field := lastLoc(item.Loc); field != "" {
				msg = field + ": " + msg
			}
			parts = append(parts, msg)
		}
		return strings.Join(parts, "; ")
	}

	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &nested) == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}

func lastLoc(loc []any) string {
	if len(loc) == 0 {
		return ""
	}
	switch v := loc[len(loc)-1].(type) {
	case string:
		return v
	default:
		return ""
	}
}

// NewRequestError builds the coded error a failed call with this status would return.
func NewRequestError(status int, message string) error {
	return wrapRequestError(&RequestError{Status: status, Message: message})
}
