package signature

import (
	"reflect"
)

// Semantic types exposed to clients.
const (
	String  = "string"
	Integer = "integer"
	Number  = "number"
	Boolean = "boolean"
	Array   = "array"
	Object  = "object"

	// Any is the sentinel for an unconstrained type. It is never concrete.
	Any = "any"
)

var errorType = reflect.TypeFor[error]()

// Concrete reports whether t names a usable semantic type.
func Concrete(t string) bool {
	return t != "" && t != Any
}

// TypeOf maps a Go type to its semantic type. It returns Any for interfaces
// and "" for types that cannot cross a JSON boundary.
func TypeOf(t reflect.Type) string {
	return typeOf(t, 0)
}

func typeOf(t reflect.Type, depth int) string {
	if t == nil || depth > 16 {
		return ""
	}
	switch t.Kind() {
	case reflect.String:
		return String
	case reflect.Bool:
		return Boolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Integer
	case reflect.Float32, reflect.Float64:
		return Number
	case reflect.Pointer:
		return typeOf(t.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		// encoding/json writes byte slices as base64 strings
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return String
		}
		if typeOf(t.Elem(), depth+1) == "" {
			return ""
		}
		return Array
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return ""
		}
		if el := typeOf(t.Elem(), depth+1); el == "" {
			return ""
		}
		return Object
	case reflect.Struct:
		return Object
	case reflect.Interface:
		return Any
	default:
		// complex, chan, func, unsafe pointer
		return ""
	}
}

// isKeywordBag reports whether t is map[string]any, the Go rendering of a
// catch-all keyword parameter.
func isKeywordBag(t reflect.Type) bool {
	return t.Kind() == reflect.Map &&
		t.Key().Kind() == reflect.String &&
		t.Elem().Kind() == reflect.Interface &&
		t.Elem().NumMethod() == 0
}
