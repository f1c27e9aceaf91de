package request

import (
	"fmt"
	"strconv"
)

// History paging bounds for GET /api/sync/history.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// ParseHistoryLimit validates the limit query parameter. An empty value
// yields DefaultHistoryLimit.
func ParseHistoryLimit(limitParam string) (int, error) {
	if limitParam == "" {
		return DefaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(limitParam)
	if err != nil {
		return 0, fmt.Errorf("invalid limit: must be a number")
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return 0, fmt.Errorf("invalid limit: must be between 1 and %d", MaxHistoryLimit)
	}
	return limit, nil
}
