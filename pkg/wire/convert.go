package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Devices report most property values as strings ("100", "on") and a few as
// JSON numbers. These helpers accept either form.

// ToInt converts a JSON number or numeral string to an int.
func ToInt(v any) (int, error) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("non-integral number %v", x)
		}
		return int(x), nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint16:
		return int(x), nil
	case json.Number:
		i, err := x.Int64()
		return int(i), err
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, fmt.Errorf("empty numeral")
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return 0, fmt.Errorf("invalid numeral %q", x)
			}
			return int(f), nil
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToString converts a scalar value to its string form.
func ToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// ToBool interprets "on"/"off", "1"/"0", numbers and booleans.
func ToBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "on", "1", "true":
			return true, nil
		case "off", "0", "false":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", x)
	default:
		i, err := ToInt(v)
		if err != nil {
			return false, err
		}
		return i != 0, nil
	}
}
