package codec

import (
	"reflect"

	"github.com/juju/errors"
)

// IsNil reports whether v is nil or a nil pointer, map, slice, channel,
// function or interface. Such results travel as NullLine.
func IsNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Conform converts a decoded value to the declared type t. nil becomes the
// zero value of t, a value and a pointer to it convert into each other, and
// numeric values convert between numeric kinds. A nil t returns v as is.
func Conform(v interface{}, t reflect.Type) (interface{}, error) {
	if t == nil {
		return v, nil
	}
	if v == nil {
		return reflect.Zero(t).Interface(), nil
	}
	rv := reflect.ValueOf(v)
	vt := rv.Type()
	switch {
	case vt == t:
		return v, nil
	case vt.AssignableTo(t):
		if t.Kind() == reflect.Interface {
			return v, nil
		}
		return rv.Convert(t).Interface(), nil
	case vt.Kind() == reflect.Ptr && vt.Elem() == t:
		if rv.IsNil() {
			return reflect.Zero(t).Interface(), nil
		}
		return rv.Elem().Interface(), nil
	case t.Kind() == reflect.Ptr && t.Elem() == vt:
		ptr := reflect.New(vt)
		ptr.Elem().Set(rv)
		return ptr.Interface(), nil
	case sameFamily(vt.Kind(), t.Kind()) && vt.ConvertibleTo(t):
		return rv.Convert(t).Interface(), nil
	}
	return nil, errors.Errorf("cannot use %s as %s", vt, t)
}

type kindFamily int

const (
	otherFamily kindFamily = iota
	boolFamily
	numberFamily
	textFamily
)

func family(k reflect.Kind) kindFamily {
	switch k {
	case reflect.Bool:
		return boolFamily
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return numberFamily
	case reflect.String:
		return textFamily
	}
	return otherFamily
}

// 只在同一类基础类型之间转换，避免 int 被转换成 string
func sameFamily(a, b reflect.Kind) bool {
	fa := family(a)
	return fa != otherFamily && fa == family(b)
}
