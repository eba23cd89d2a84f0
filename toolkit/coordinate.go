package toolkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMissingCoordinate is returned for absent or falsy values. A literal 0 counts as missing.
	ErrMissingCoordinate = errors.New("No (longitude, latitude) info provided")
	// ErrInvalidCoordinate is returned for values that are present but not a usable number.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Coordinate is a latitude or longitude as received from a client.
type Coordinate struct {
	// Text is the value exactly as the client sent it.
	Text  string
	Value float64
}

// Arg renders the coordinate as a command line argument.
func (c Coordinate) Arg() string {
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

func (c Coordinate) String() string {
	return c.Text
}

// Truthy applies the usual JSON truthiness: null, false, 0, "" and empty
// arrays or objects are false, everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// ParseLatitude validates a decoded JSON value as a latitude in [-90, 90].
func ParseLatitude(v any) (Coordinate, error) {
	return parseCoordinate("latitude", v, 90)
}

// ParseLongitude validates a decoded JSON value as a longitude in [-180, 180].
func ParseLongitude(v any) (Coordinate, error) {
	return parseCoordinate("longitude", v, 180)
}

func parseCoordinate(name string, v any, limit float64) (Coordinate, error) {
	if !Truthy(v) {
		return Coordinate{}, ErrMissingCoordinate
	}
	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case float64:
		text = strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		text = strings.TrimSpace(t)
	default:
		return Coordinate{}, fmt.Errorf("%w: %s must be a number", ErrInvalidCoordinate, name)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Coordinate{}, fmt.Errorf("%w: %s '%s' is not a number", ErrInvalidCoordinate, name, text)
	}
	if f < -limit || f > limit {
		return Coordinate{}, fmt.Errorf("%w: %s %s is out of range", ErrInvalidCoordinate, name, text)
	}
	return Coordinate{Text: text, Value: f}, nil
}
