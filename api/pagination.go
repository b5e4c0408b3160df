package api

import (
	"net/http"
	"strconv"
)

const (
	limitKey  = "limit"
	offsetKey = "offset"

	defaultLimit  = uint64(100)
	defaultOffset = uint64(0)
	maxLimit      = uint64(1000)
)

// pagination holds the paging parameters of a listing request.
type pagination struct {
	Limit  uint64
	Offset uint64
}

// newPagination extracts pagination parameters from an http request,
// clamping the limit to maxLimit.
func newPagination(r *http.Request) (pagination, error) {
	values := r.URL.Query()
	p := pagination{Limit: defaultLimit, Offset: defaultOffset}

	if v := values.Get(limitKey); v != "" {
		limit, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return pagination{}, badRequest("limit: %v", err)
		}
		p.Limit = limit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	if v := values.Get(offsetKey); v != "" {
		offset, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return pagination{}, badRequest("offset: %v", err)
		}
		p.Offset = offset
	}
	return p, nil
}
