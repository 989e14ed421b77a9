package handlers

import (
	"errors"

	"github.com/spf13/cast"
)

var errInvalidPagination = errors.New("page and limit must be positive integers")

const maxPageLimit = 200

func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := int64(1)
	limit := int64(20)

	if pageStr != "" {
		p, err := cast.ToInt64E(pageStr)
		if err != nil || p < 1 {
			return 0, 0, errInvalidPagination
		}
		page = p
	}

	if limitStr != "" {
		l, err := cast.ToInt64E(limitStr)
		if err != nil || l < 1 {
			return 0, 0, errInvalidPagination
		}
		limit = min(l, maxPageLimit)
	}

	return page, limit, nil
}
