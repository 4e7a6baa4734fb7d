package schema

import (
	"fmt"
	"reflect"
	"strconv"
)

// AsInt64 converts any Go numeric value (or a decimal string) to int64
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), float32(int64(n)) == n
	case float64:
		return int64(n), float64(int64(n)) == n
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// AsFloat64 converts any Go numeric value to float64
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := AsInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// AsInt64Slice converts a slice of numbers to []int64
func AsInt64Slice(v any) ([]int64, error) {
	if ids, ok := v.([]int64); ok {
		return ids, nil
	}
	if v == nil {
		return nil, fmt.Errorf("expected id list, got nil")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected id list, got %T", v)
	}
	ids := make([]int64, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		id, ok := AsInt64(rv.Index(i).Interface())
		if !ok {
			return nil, fmt.Errorf("id list element %d is not an integer: %v", i, rv.Index(i).Interface())
		}
		ids = append(ids, id)
	}
	return ids, nil
}
