package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// Sentinel decode errors for permissive scalar fields.
var (
	// ErrScalarEmpty is returned when a numeric field is present but empty.
	ErrScalarEmpty = errors.New("numeric field cannot be empty")

	// ErrScalarFormat is returned when a numeric field is neither a JSON
	// number/boolean nor a decimal string.
	ErrScalarFormat = errors.New("invalid numeric field")
)

// Number is a permissive integer scalar: it accepts a native JSON number, a
// JSON boolean, or a decimal string ("42"). Fractional numbers and
// non-decimal strings fail the decode. Used for limit, rating,
// initial_evaluation and the best_talks `all` flag.
type Number struct {
	value int64
	valid bool
}

// NewNumber builds a set Number, mainly for tests.
func NewNumber(v int64) Number {
	return Number{value: v, valid: true}
}

// UnmarshalJSON accepts 42, "42", true and false.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrScalarEmpty
	}

	switch {
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %s", ErrScalarFormat, data)
		}

		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrScalarFormat, s)
		}

		n.value = v

	case bytes.Equal(data, []byte("true")):
		n.value = 1

	case bytes.Equal(data, []byte("false")):
		n.value = 0

	default:
		var v json.Number
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %s", ErrScalarFormat, data)
		}

		i, err := v.Int64()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrScalarFormat, v)
		}

		n.value = i
	}

	n.valid = true

	return nil
}

// Int returns the decoded value.
func (n Number) Int() int {
	return int(n.value)
}

// Bool interprets the scalar as the `all` flag: 1 is true, everything else false.
func (n Number) Bool() bool {
	return n.value == 1
}

// IsSet reports whether the field was present in the request.
func (n Number) IsSet() bool {
	return n.valid
}
