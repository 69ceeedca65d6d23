package zenodo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Error is returned for any unexpected answer from the archive service.
// Body keeps the raw response for diagnostics.
type Error struct {
	Message    string
	StatusCode int
	Body       []byte
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// Detail renders the response body: the service's "message" field when there is
// one, otherwise the body pretty-printed when it is JSON, otherwise as-is.
func (e *Error) Detail() string {
	trim := bytes.TrimSpace(e.Body)
	if len(trim) == 0 {
		return ""
	}
	if msg, ok := apiErrorMessage(trim); ok {
		return msg
	}
	if pretty, ok := PrettyJSON(trim); ok {
		return strings.TrimSpace(string(pretty))
	}
	return string(trim)
}

func statusError(msg string, status int, body []byte) *Error {
	return &Error{Message: msg, StatusCode: status, Body: body}
}

type apiErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func apiErrorMessage(body []byte) (string, bool) {
	var e apiErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return "", false
	}
	if strings.TrimSpace(e.Message) == "" {
		return "", false
	}
	return e.Message, true
}

// PrettyJSON re-indents b with two spaces and a trailing newline. It reports
// false when b is not JSON.
func PrettyJSON(b []byte) ([]byte, bool) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, false
	}
	out = append(out, '\n')
	return out, true
}
