package httputil

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

var (
	errInvalidOffset = errors.New("invalid offset parameter: must be a non-negative integer")
	errInvalidLimit  = errors.New("invalid limit parameter: must be between 1 and 100")
)

// ParsePagination reads the offset and limit query parameters.
// Offset defaults to 0 and limit to 50, capped at 100.
func ParsePagination(c *gin.Context) (offset, limit int, err error) {
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, errInvalidOffset
	}

	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit < 1 || limit > maxPageLimit {
		return 0, 0, errInvalidLimit
	}

	return offset, limit, nil
}

// Page returns the window [offset, offset+limit) of items, clamped to its bounds.
func Page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) || limit <= 0 {
		return []T{}
	}
	return lo.Subset(items, offset, uint(limit))
}
