package responses

// SuccessEnvelope wraps every 2xx JSON body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the error body. Details only appear for codes that allow them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
