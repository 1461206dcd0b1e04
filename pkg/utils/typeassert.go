// Package utils provides small helpers shared across tinker: type assertions
// on decoded JSON, identifiers, result-directory lookup and token counting.
package utils

import "strconv"

// StringField returns m[key] as a string. Numbers and booleans decoded from
// JSON are formatted; nil and missing keys report false.
func StringField(m map[string]any, key string) (string, bool) {
	switch v := m[key].(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
