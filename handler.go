package remoting

import (
	"fmt"
	"reflect"

	"github.com/juju/errors"

	"remoting/codec"
	"remoting/contract"
)

// Handler 是实现方法的装箱适配器
// 接收无类型的参数列表，转换为实现方法的参数类型后调用，再把返回值装箱
type Handler struct {
	params []reflect.Type
	// 无返回值时为 nil
	result reflect.Type
	fn     func(args []interface{}) (interface{}, error)
}

// Params returns the parameter types the handler unpacks.
func (h Handler) Params() []reflect.Type {
	return h.params
}

// Result returns the boxed result type, nil for procedures.
func (h Handler) Result() reflect.Type {
	return h.result
}

func (h Handler) call(args []interface{}) (interface{}, error) {
	if len(args) != len(h.params) {
		return nil, errors.Errorf("expected %d arguments, got %d", len(h.params), len(args))
	}
	return h.fn(args)
}

func argAt[T any](args []interface{}, i int) (T, error) {
	var zero T
	v, err := codec.Conform(args[i], contract.TypeOf[T]())
	if err != nil {
		return zero, errors.Annotatef(err, "argument %d", i)
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}

func Func0[R any](f func() (R, error)) Handler {
	return Handler{
		result: contract.TypeOf[R](),
		fn: func(args []interface{}) (interface{}, error) {
			return f()
		},
	}
}

func Func1[A, R any](f func(A) (R, error)) Handler {
	return Handler{
		params: []reflect.Type{contract.TypeOf[A]()},
		result: contract.TypeOf[R](),
		fn: func(args []interface{}) (interface{}, error) {
			a, err := argAt[A](args, 0)
			if err != nil {
				return nil, err
			}
			return f(a)
		},
	}
}

func Func2[A, B, R any](f func(A, B) (R, error)) Handler {
	return Handler{
		params: []reflect.Type{contract.TypeOf[A](), contract.TypeOf[B]()},
		result: contract.TypeOf[R](),
		fn: func(args []interface{}) (interface{}, error) {
			a, err := argAt[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := argAt[B](args, 1)
			if err != nil {
				return nil, err
			}
			return f(a, b)
		},
	}
}

func Func3[A, B, C, R any](f func(A, B, C) (R, error)) Handler {
	return Handler{
		params: []reflect.Type{contract.TypeOf[A](), contract.TypeOf[B](), contract.TypeOf[C]()},
		result: contract.TypeOf[R](),
		fn: func(args []interface{}) (interface{}, error) {
			a, err := argAt[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := argAt[B](args, 1)
			if err != nil {
				return nil, err
			}
			c, err := argAt[C](args, 2)
			if err != nil {
				return nil, err
			}
			return f(a, b, c)
		},
	}
}

func Proc0(f func() error) Handler {
	return Handler{
		fn: func(args []interface{}) (interface{}, error) {
			return nil, f()
		},
	}
}

func Proc1[A any](f func(A) error) Handler {
	return Handler{
		params: []reflect.Type{contract.TypeOf[A]()},
		fn: func(args []interface{}) (interface{}, error) {
			a, err := argAt[A](args, 0)
			if err != nil {
				return nil, err
			}
			return nil, f(a)
		},
	}
}

func Proc2[A, B any](f func(A, B) error) Handler {
	return Handler{
		params: []reflect.Type{contract.TypeOf[A](), contract.TypeOf[B]()},
		fn: func(args []interface{}) (interface{}, error) {
			a, err := argAt[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := argAt[B](args, 1)
			if err != nil {
				return nil, err
			}
			return nil, f(a, b)
		},
	}
}

func Proc3[A, B, C any](f func(A, B, C) error) Handler {
	return Handler{
		params: []reflect.Type{contract.TypeOf[A](), contract.TypeOf[B](), contract.TypeOf[C]()},
		fn: func(args []interface{}) (interface{}, error) {
			a, err := argAt[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := argAt[B](args, 1)
			if err != nil {
				return nil, err
			}
			c, err := argAt[C](args, 2)
			if err != nil {
				return nil, err
			}
			return nil, f(a, b, c)
		},
	}
}

// Table 是实现者提供的方法注册表
// 隐式实现以方法名为键，显式实现以 "Contract.Method" 为键，同名方法可以重载
type Table struct {
	entries map[string][]Handler
}

func NewTable() *Table {
	return &Table{entries: make(map[string][]Handler)}
}

// Implicit registers h as the implementation of every contract method named
// name with matching parameter types.
func (t *Table) Implicit(name string, h Handler) *Table {
	t.entries[name] = append(t.entries[name], h)
	return t
}

// Explicit registers h for method name of the contract named contractName
// only. It is consulted when no implicit implementation matches.
func (t *Table) Explicit(contractName, name string, h Handler) *Table {
	key := contractName + "." + name
	t.entries[key] = append(t.entries[key], h)
	return t
}

// Implementation is a server-side object: the root implementation of a
// contract, or an instance handed out through a remote result.
type Implementation interface {
	Methods() *Table
}

// resolve 先查找隐式实现，找不到时再查找显式实现
func (t *Table) resolve(c *contract.Contract, m contract.Method) (Handler, bool) {
	for _, key := range []string{m.Name, c.Name + "." + m.Name} {
		for _, h := range t.entries[key] {
			if h.matches(m) {
				return h, true
			}
		}
	}
	return Handler{}, false
}

func (h Handler) matches(m contract.Method) bool {
	if len(h.params) != len(m.Params) {
		return false
	}
	for i, p := range m.Params {
		if p.Remote != nil {
			if h.params[i].Kind() != reflect.Interface && h.params[i].Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		if h.params[i] != p.Type {
			return false
		}
	}
	return true
}

// checkResult reports a configuration error when the handler cannot return
// what m declares.
func (h Handler) checkResult(m contract.Method) error {
	switch {
	case m.Remote != nil:
		if h.result == nil {
			return fmt.Errorf("returns nothing, declared a %s handle", m.Remote.Name)
		}
	case m.Result == nil:
		if h.result != nil {
			return fmt.Errorf("returns %s, declared nothing", h.result)
		}
	case h.result == nil || !h.result.AssignableTo(m.Result):
		return fmt.Errorf("returns %v, declared %s", h.result, m.Result)
	}
	return nil
}

// Result converts the untyped result of Invoke for a stub method.
func Result[T any](v interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, errors.Errorf("remoting: result %T is not %s", v, contract.TypeOf[T]())
	}
	return out, nil
}

// Void drops the result of Invoke for a stub method returning nothing.
func Void(_ interface{}, err error) error {
	return err
}
