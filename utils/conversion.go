package utils

import (
	"fmt"
	"math"
)

// SafeUint64ToInt64 converts uint64 to int64, returning an error if overflow would occur
func SafeUint64ToInt64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("uint64 value %d exceeds int64 maximum %d", value, int64(math.MaxInt64))
	}

	return int64(value), nil //nolint:gosec // Conversion is safe after overflow check
}

// SafeInt64ToUint64 converts int64 to uint64, returning an error for negative values
func SafeInt64ToUint64(value int64) (uint64, error) {
	if value < 0 {
		return 0, fmt.Errorf("int64 value %d is negative", value)
	}

	return uint64(value), nil
}

// SafeInt64ToUint32 converts an int64 flag value to uint32, returning an error if out of range
func SafeInt64ToUint32(value int64) (uint32, error) {
	if value < 0 || value > math.MaxUint32 {
		return 0, fmt.Errorf("value %d is out of the uint32 range", value)
	}

	return uint32(value), nil
}
