package enums

import (
	"fmt"
	"slices"
)

func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// parse matches value exactly against set; kind names the enum in the error.
func parse[T ~string](kind, value string, set []T) (T, error) {
	if v := T(value); slices.Contains(set, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
