package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/peteski22/adsbridge/internal/catalog"
)

// ErrInvalidPageSize is returned for a page size that is not a positive integer.
var ErrInvalidPageSize = errors.New("invalid page size")

// ParsePageSize resolves a configured page size. An absent value (nil) means
// catalog.DefaultPageSize; any supplied value must be a positive integer, given
// as a number or a decimal string.
func ParsePageSize(value any) (int, error) {
	if value == nil {
		return catalog.DefaultPageSize, nil
	}

	var n int64
	var ok bool
	switch v := value.(type) {
	case int:
		n, ok = int64(v), true
	case int32:
		n, ok = int64(v), true
	case int64:
		n, ok = v, true
	case uint:
		n, ok = int64(v), v <= math.MaxInt64
	case uint64:
		n, ok = int64(v), v <= math.MaxInt64
	case float64:
		n, ok = int64(v), v == math.Trunc(v) && math.Abs(v) < math.MaxInt64
	case json.Number:
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		n, ok = parsed, err == nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		n, ok = parsed, err == nil
	}

	if !ok || n <= 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, fmt.Sprint(value))
	}
	return int(n), nil
}
