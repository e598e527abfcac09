package codegen

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"factory/internal/shared/util"
)

// pyLiteral renders a JSON-shaped Go value as a Python literal. Map keys are
// emitted in sorted order so rendered output is stable.
func pyLiteral(v any) string {
	switch value := v.(type) {
	case nil:
		return "None"
	case bool:
		if value {
			return "True"
		}
		return "False"
	case string:
		escaped, _ := json.Marshal(value)
		return string(escaped)
	case float64:
		if value == math.Trunc(value) && math.Abs(value) < 1e15 {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'g', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case []any:
		parts := make([]string, len(value))
		for i, item := range value {
			parts[i] = pyLiteral(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(value))
		for _, key := range util.SortedStringKeys(value) {
			parts = append(parts, fmt.Sprintf("%s: %s", pyLiteral(key), pyLiteral(value[key])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		// Values decoded from JSON or YAML never reach this arm; anything
		// else renders through a JSON round trip.
		encoded, err := json.Marshal(value)
		if err != nil {
			return "None"
		}
		var generic any
		if err := json.Unmarshal(encoded, &generic); err != nil {
			return "None"
		}
		return pyLiteral(generic)
	}
}
