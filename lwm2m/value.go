package lwm2m

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var intRegex = regexp.MustCompile(`^-?\d+$`)

// CoerceString converts a string to bool/int/float when it looks like one,
// otherwise returns it unchanged. Used for CLI input and link-format
// attribute values.
func CoerceString(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if intRegex.MatchString(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// wireTypeValue maps a Go value to the EMQx value type name and its wire
// representation. Booleans go on the wire as lower-case strings.
func wireTypeValue(v any) (string, any, error) {
	switch val := v.(type) {
	case bool:
		return "Boolean", strconv.FormatBool(val), nil
	case int:
		return "Integer", val, nil
	case int32:
		return "Integer", int64(val), nil
	case int64:
		return "Integer", val, nil
	case float32:
		return "Float", float64(val), nil
	case float64:
		return "Float", val, nil
	case string:
		return "String", val, nil
	default:
		return "", nil, fmt.Errorf("no wire type for value %v (%T)", v, v)
	}
}

// parseCoreLinks parses CoRE link-format discover content, e.g.
// "</3/0>;pmin=10;pmax=60,</3/0/9>" into a path-to-attributes map.
func parseCoreLinks(items []string) map[Path]map[string]any {
	out := make(map[Path]map[string]any)
	for _, item := range items {
		for _, link := range strings.Split(item, ",") {
			parts := strings.Split(link, ";")
			p := strings.Trim(strings.TrimSpace(parts[0]), "<>")
			if p == "" {
				continue
			}
			attrs := make(map[string]any)
			for _, a := range parts[1:] {
				kv := strings.SplitN(a, "=", 2)
				if len(kv) != 2 {
					continue
				}
				attrs[kv[0]] = CoerceString(kv[1])
			}
			out[NewPath(p)] = attrs
		}
	}
	return out
}
