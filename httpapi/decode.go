package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON value into dst. Unknown fields,
// trailing data and bodies over 1 MiB are rejected. An empty body is an
// error unless optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			if optional {
				return nil
			}
			return badRequest("request body is required")
		case errors.As(err, &tooLarge):
			return badRequest("request body must not exceed 1MB")
		default:
			return badRequest("malformed JSON: %v", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// monthQuery reads the optional month and year query parameters. Both are
// zero when absent; a month without a year matches that month of any year.
func monthQuery(r *http.Request) (month, year int, err error) {
	q := r.URL.Query()
	if v := q.Get("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil || month < 1 || month > 12 {
			return 0, 0, badRequest("month must be 1-12")
		}
	}
	if v := q.Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil || year < 1 {
			return 0, 0, badRequest("year must be a positive number")
		}
	}
	return month, year, nil
}
