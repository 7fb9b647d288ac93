// Package contract describes service contracts and discovers the method
// surface and value types a contract puts on the wire.
//
// A Contract is an explicit, language-neutral description: a name, the
// contracts it composes, and its method signatures. Client and server build
// the same description; the method identity strings derived from it are what
// travels on the wire.
package contract

import (
	"reflect"
	"strings"
)

// Direction is the passing mode of a parameter. Only In parameters can be
// serialized one way.
type Direction int

const (
	In Direction = iota
	Out
	ByRef
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	case ByRef:
		return "ref"
	}
	return "unknown"
}

// Invoker is the single entry point every proxy method forwards to.
type Invoker interface {
	Invoke(method string, args ...interface{}) (interface{}, error)
}

// Contract is a named set of method signatures, possibly composing other
// contracts.
type Contract struct {
	// Name is the fully qualified contract name, e.g. "calc.Calculator".
	Name string
	// Embeds lists composed contracts. Their methods are part of this
	// contract's surface.
	Embeds []*Contract
	// Methods declared by this contract itself.
	Methods []Method
	// Stub builds the client-side proxy: a value implementing the Go
	// interface of the contract whose methods call inv.Invoke with the
	// matching method identity.
	Stub func(inv Invoker) interface{}
}

// Method is one signature of a contract. Properties are described as a
// get_/set_ pair, see Getter and Setter.
type Method struct {
	Name   string
	Params []Param
	// Result is nil for methods returning nothing.
	Result reflect.Type
	// Remote is set when the method returns a live handle to a server-side
	// object implementing that (referenceable) contract instead of a copy.
	Remote *Contract
}

// Param is one parameter of a method.
type Param struct {
	Name string
	Type reflect.Type
	// Remote is set when the argument is a handle previously received from
	// the server; it travels as a Ref.
	Remote *Contract
	Dir    Direction
}

// Ref carries the identity of a server-side object on the wire. It is the
// marker type present in every known type set.
type Ref struct {
	ID int64
}

// Referenceable is composed by contracts whose instances are returned as
// live handles. Dispose is an ordinary remote call on the instance.
var Referenceable = &Contract{
	Name:    "remoting.Referenceable",
	Methods: []Method{{Name: "Dispose"}},
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Getter describes the read accessor of property name.
func Getter(name string, t reflect.Type) Method {
	return Method{Name: "get_" + name, Result: t}
}

// Setter describes the write accessor of property name.
func Setter(name string, t reflect.Type) Method {
	return Method{Name: "set_" + name, Params: []Param{{Name: "value", Type: t}}}
}

func (p Param) typeName() string {
	if p.Type != nil {
		return p.Type.String()
	}
	if p.Remote != nil {
		return p.Remote.Name
	}
	return "<nil>"
}

// Signature renders the method name and its parameter types, e.g.
// "Add(int, int)".
func (m Method) Signature() string {
	names := make([]string, len(m.Params))
	for i, p := range m.Params {
		names[i] = p.typeName()
	}
	return m.Name + "(" + strings.Join(names, ", ") + ")"
}

// Identity returns the wire identity of m declared by c:
// "<contract>.<name>(<param types>)".
func (c *Contract) Identity(m Method) string {
	return c.Name + "." + m.Signature()
}

// IsReferenceable reports whether c composes Referenceable, directly or
// through another composed contract.
func (c *Contract) IsReferenceable() bool {
	return c.composes(Referenceable, make(map[*Contract]bool))
}

func (c *Contract) composes(target *Contract, seen map[*Contract]bool) bool {
	if c == nil || seen[c] {
		return false
	}
	if c == target {
		return true
	}
	seen[c] = true
	for _, e := range c.Embeds {
		if e.composes(target, seen) {
			return true
		}
	}
	return false
}
