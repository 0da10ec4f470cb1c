package packets

import (
	"fmt"
	"math"
	"strconv"
)

// Kind of a payload value
type Kind uint8

const (
	KindInvalid Kind = iota // zero value, never encoded
	KindString
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "invalid"
	}
}

// Value is one typed element of a packet payload
type Value struct {
	Kind  Kind
	Str   string
	Int   int32
	Float float32
}

func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

func Int(i int32) Value {
	return Value{Kind: KindInt, Int: i}
}

func Float(f float32) Value {
	return Value{Kind: KindFloat, Float: f}
}

// ValueOf converts a Go scalar into a payload value. Integral numbers that fit
// in an int32 become KindInt, other numbers KindFloat. The second result is
// false when v has no wire representation.
func ValueOf(v any) (Value, bool) {
	switch x := v.(type) {
	case Value:
		return x, x.Kind != KindInvalid
	case string:
		return String(x), true
	case int:
		return intOrFloat(float64(x)), true
	case int8:
		return Int(int32(x)), true
	case int16:
		return Int(int32(x)), true
	case int32:
		return Int(x), true
	case int64:
		return intOrFloat(float64(x)), true
	case uint8:
		return Int(int32(x)), true
	case uint16:
		return Int(int32(x)), true
	case uint32:
		return intOrFloat(float64(x)), true
	case float32:
		return intOrFloat(float64(x)), true
	case float64:
		return intOrFloat(x), true
	default:
		return Value{}, false
	}
}

func intOrFloat(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
		return Int(int32(f))
	}
	return Float(float32(f))
}

// AsString renders the value as the micro:bit would display it
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case KindFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.Kind == KindString {
		return strconv.Quote(v.Str)
	}
	if v.Kind == KindInvalid {
		return "<invalid>"
	}
	return fmt.Sprintf("%s(%s)", v.Kind, v.AsString())
}
