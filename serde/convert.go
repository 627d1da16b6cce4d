package serde

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/c360/streampilot/errors"
)

// Convert turns the stringified key from a query request into a value of
// the serde's key type. Parse failures keep the underlying error text so
// the endpoint can surface it verbatim.
func Convert(s string, t reflect.Type) (any, error) {
	switch t.Kind() {
	case reflect.String:
		return s, nil
	case reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, conversionError(s, t, err)
		}
		return n, nil
	case reflect.Int32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, conversionError(s, t, err)
		}
		return int32(n), nil
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, conversionError(s, t, err)
		}
		return f, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return []byte(s), nil
		}
	case reflect.Array:
		if t == reflect.TypeOf(uuid.UUID{}) {
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, conversionError(s, t, err)
			}
			return id, nil
		}
	}
	return nil, conversionError(s, t, fmt.Errorf("unsupported key type %s", t))
}

func conversionError(s string, t reflect.Type, cause error) error {
	return fmt.Errorf("%w: cannot convert %q to %s: %v",
		errors.ErrKeyConversion, s, t, cause)
}
