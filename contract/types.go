package contract

import "reflect"

var textType = reflect.TypeOf("")

// IsPrimitive reports whether t is a predeclared boolean or numeric type.
func IsPrimitive(t reflect.Type) bool {
	if t == nil || t.PkgPath() != "" || t.Name() == "" {
		return false
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

// IsText reports whether t is the predeclared string type.
func IsText(t reflect.Type) bool {
	return t == textType
}

// TypeSet is an insertion-ordered set of types. The set returned by
// Discover is never modified afterwards.
type TypeSet struct {
	types []reflect.Type
	index map[reflect.Type]bool
}

func newTypeSet() *TypeSet {
	return &TypeSet{index: make(map[reflect.Type]bool)}
}

// add inserts t unless it is void, primitive or text. It reports whether t
// was new.
func (s *TypeSet) add(t reflect.Type) bool {
	if t == nil || IsPrimitive(t) || IsText(t) || s.index[t] {
		return false
	}
	s.index[t] = true
	s.types = append(s.types, t)
	return true
}

// Contains reports whether t is in the set.
func (s *TypeSet) Contains(t reflect.Type) bool {
	return s.index[t]
}

// Len returns the number of types in the set.
func (s *TypeSet) Len() int {
	return len(s.types)
}

// Types returns the types in first-seen order.
func (s *TypeSet) Types() []reflect.Type {
	out := make([]reflect.Type, len(s.types))
	copy(out, s.types)
	return out
}
