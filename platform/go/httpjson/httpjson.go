package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type   string  `json:"type,omitempty"`
	Title  string  `json:"title"`
	Status int     `json:"status"`
	Detail *string `json:"detail,omitempty"`
}

// Write serializes v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem emits an application/problem+json response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := Problem{Title: title, Status: status}
	if detail != "" {
		p.Detail = &detail
	}
	_ = json.NewEncoder(w).Encode(p)
}

var ErrEmptyBody = errors.New("request body is required")

// Decode reads a JSON request body into dst, rejecting unknown fields and
// empty bodies.
func Decode(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	return nil
}
