package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound matches any *StatusError with a 404 status.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx response.
//
// Code and Message are lifted from the body when it is a JSON object of
// the form {"code": ..., "message": ...} or {"errors": [{...}]}; Body keeps
// the raw text either way.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Code       string
	Message    string
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d: %s: %s", e.Method, e.URL, e.StatusCode, e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

// Is makes errors.Is(err, ErrNotFound) work for 404s.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// AsStatusError extracts a *StatusError from err.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404 from the ledger or replica.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func newStatusError(method, url string, status int, body []byte) *StatusError {
	se := &StatusError{Method: method, URL: url, StatusCode: status, Body: string(body)}

	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return se
	}
	se.Code, se.Message = eb.Code, eb.Message
	if se.Code == "" && len(eb.Errors) > 0 {
		se.Code = eb.Errors[0].Code
		msgs := make([]string, 0, len(eb.Errors))
		for _, e := range eb.Errors {
			msgs = append(msgs, e.Message)
		}
		se.Message = strings.Join(msgs, "; ")
	}
	return se
}
