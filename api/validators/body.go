package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/validate"
)

// MaxJSONBodyBytes caps JSON request bodies; spreadsheet uploads go through
// the multipart path instead.
const MaxJSONBodyBytes = 1 << 20

// DecodeJSONBody decodes exactly one JSON object into dest, rejecting unknown
// fields and trailing data, then runs struct validation.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxJSONBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return bodyError(err)
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must hold a single JSON object")
	}
	return validate.Struct(dest)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return pkgerrors.New(pkgerrors.CodeValidation, "request body is empty")
	case errors.As(err, &tooLarge):
		return pkgerrors.Newf(pkgerrors.CodeValidation, "request body exceeds %d bytes", tooLarge.Limit)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
}
