package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrUnauthorized is matched by every error produced from a 401 response
var ErrUnauthorized = errors.New("unauthorized")

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 64 << 10

// FieldError holds the messages the API reported for one field
type FieldError struct {
	Field    string
	Messages []string
}

// APIError is a non-2xx API response. Fields keeps the order in which the
// server reported them.
type APIError struct {
	StatusCode int
	Fields     []FieldError
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.StatusCode, e.Message())
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Message returns the first message the server reported, falling back to
// the raw body and then to the status text
func (e *APIError) Message() string {
	for _, f := range e.Fields {
		if len(f.Messages) > 0 {
			return f.Messages[0]
		}
	}
	if body := strings.TrimSpace(e.Body); body != "" && len(body) < 200 {
		return body
	}
	return http.StatusText(e.StatusCode)
}

// FieldMessages returns the messages reported for field
func (e *APIError) FieldMessages(field string) []string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Messages
		}
	}
	return nil
}

// Message returns the user-facing message of err: the first reported
// field message for API and validation errors, err.Error() otherwise
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return invalid.Message()
	}
	return err.Error()
}

// newAPIError reads the body of a failed response
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &APIError{
		StatusCode: resp.StatusCode,
		Fields:     parseFields(body),
		Body:       string(body),
	}
}

// parseFields decodes a field -> messages object in document order.
// Values may be a string ({"detail": "..."}), a list of strings or a
// nested object whose messages are flattened under the parent field.
func parseFields(body []byte) []FieldError {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}

	var fields []FieldError
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fields
		}
		key, ok := keyTok.(string)
		if !ok {
			return fields
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fields
		}

		if msgs := messagesOf(raw); len(msgs) > 0 {
			fields = append(fields, FieldError{Field: key, Messages: msgs})
		}
	}

	return fields
}

func messagesOf(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, item := range list {
			out = append(out, messagesOf(item)...)
		}
		return out
	}

	var out []string
	for _, f := range parseFields(raw) {
		out = append(out, f.Messages...)
	}
	return out
}
