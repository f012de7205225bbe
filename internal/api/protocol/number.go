package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// errNotNumeric is returned for values that are neither a number nor a numeric string.
var errNotNumeric = errors.New("value is not numeric")

// ParseNumber accepts a JSON number or a string holding one.
// Missing values, NaN and infinities are rejected.
func ParseNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errNotNumeric
	}

	var (
		v   float64
		err error
	)

	switch raw[0] {
	case '"':
		var s string
		if err = json.Unmarshal(raw, &s); err != nil {
			return 0, errNotNumeric
		}

		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
	default:
		err = json.Unmarshal(raw, &v)
	}

	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotNumeric
	}

	return v, nil
}
