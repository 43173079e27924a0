// Package responses renders the JSON envelopes and downloads the console API
// answers with.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteFile sends data as an attachment named filename.
func WriteFile(w http.ResponseWriter, filename, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// WriteError maps err onto its code's status. Untyped errors become
// INTERNAL_ERROR, whose message never reaches the caller.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if typed.Code() != pkgerrors.CodeInternal && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	logFailure(ctx, logg, err, typed, meta.HTTPStatus)
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: apiErr})
}

func logFailure(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	if logg == nil {
		return
	}
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
		"status":      status,
	}
	if dump.SQLDriver != "" {
		fields["sql_driver"] = dump.SQLDriver
		fields["sql_code"] = dump.SQLCode
		fields["sql_message"] = dump.SQLMessage
		for key, value := range map[string]string{
			"sql_detail":     dump.SQLDetail,
			"sql_table":      dump.SQLTable,
			"sql_constraint": dump.SQLConstraint,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	if details, ok := typed.Details().(map[string]any); ok {
		if backend, ok := details["status"]; ok {
			fields["backend_status"] = backend
		}
	}

	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request failed", err)
		return
	}
	logg.Warn(ctx, "request rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
