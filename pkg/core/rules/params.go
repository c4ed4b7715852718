package rules

import (
	"fmt"
	"strconv"
)

// Params holds the decoded parameters of a rule definition
type Params map[string]any

// Float reads a numeric parameter, falling back to def when missing or unparseable
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

// Int reads an integer parameter
func (p Params) Int(key string, def int) int {
	return int(p.Float(key, float64(def)))
}

// String reads a string parameter
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
