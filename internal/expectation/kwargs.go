package expectation

import (
	"fmt"
	"strconv"
)

// Kwargs are the decoded keyword arguments of an expectation. Values arrive
// from YAML or JSON, so numbers may be int, int64, uint64 or float64.
type Kwargs map[string]any

// String returns a required string argument.
func (k Kwargs) String(key string) (string, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string, got %T", key, v)
	}
	return s, nil
}

// StringSet returns a required list argument as a set of strings. Scalar
// members are formatted the way they would appear in a text cell.
func (k Kwargs) StringSet(key string) (map[string]bool, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%s is required", key)
	}

	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a list, got %T", key, v)
	}

	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[scalarText(item)] = true
	}
	return set, nil
}

// OptionalInt returns an integer argument and whether it was present.
func (k Kwargs) OptionalInt(key string) (int, bool, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case uint64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, false, fmt.Errorf("%s must be an integer, got %v", key, n)
		}
		return int(n), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

// OptionalFloat returns a numeric argument and whether it was present.
func (k Kwargs) OptionalFloat(key string) (float64, bool, error) {
	v, ok := k[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case uint64:
		return float64(n), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
