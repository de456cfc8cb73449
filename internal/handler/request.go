package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const maxJSONBodySize = 2 << 20

// page is a validated skip/limit pair.
type page struct {
	skip  int
	limit int
}

// decodeJSON reads a single JSON value from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

	dec := json.NewDecoder(r.Body)
	err := dec.Decode(v)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// parsePage reads skip and limit from the query string. A missing limit
// falls back to defaultLimit; larger values are capped at maxLimit.
func parsePage(r *http.Request, defaultLimit, maxLimit int) (page, error) {
	p := page{skip: 0, limit: defaultLimit}
	q := r.URL.Query()

	if raw := q.Get("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return p, errors.New("skip must be a non-negative integer")
		}
		p.skip = skip
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return p, errors.New("limit must be a positive integer")
		}
		p.limit = limit
	}

	if p.limit > maxLimit {
		p.limit = maxLimit
	}
	return p, nil
}
