package settings

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// ParseNonNegativeInt accepts a JSON number or numeric string holding a whole number >= 0.
func ParseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		n, errAtoi := strconv.Atoi(strings.TrimSpace(s))
		return n, errAtoi == nil && n >= 0
	}
	var f float64
	if json.Unmarshal(raw, &f) != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// ParseBool accepts a JSON bool, 0/1, or a yes/no style string.
func ParseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, jsonNull) {
		return false, false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		}
		return false, false
	}
	if n, ok := ParseNonNegativeInt(raw); ok && n <= 1 {
		return n == 1, true
	}
	return false, false
}

// ParseString accepts a JSON string and trims it.
func ParseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	var s string
	if bytes.Equal(raw, jsonNull) || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// Int returns the cached setting as a non-negative int.
func Int(key string) (int, bool) {
	raw, ok := DBConfigValue(key)
	if !ok {
		return 0, false
	}
	return ParseNonNegativeInt(raw)
}

// Bool returns the cached setting as a bool.
func Bool(key string) (bool, bool) {
	raw, ok := DBConfigValue(key)
	if !ok {
		return false, false
	}
	return ParseBool(raw)
}

// String returns the cached setting as a non-empty trimmed string.
func String(key string) (string, bool) {
	raw, ok := DBConfigValue(key)
	if !ok {
		return "", false
	}
	s, okParse := ParseString(raw)
	return s, okParse && s != ""
}
